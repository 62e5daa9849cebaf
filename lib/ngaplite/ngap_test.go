package ngaplite

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/free5gc/aper"
	"github.com/free5gc/ngap"
	"github.com/free5gc/ngap/ngapType"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/entropy"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
	"github.com/thebagchi/asnfuzz-go/lib/fuzz"
	"github.com/thebagchi/asnfuzz-go/lib/per"
)

var (
	plmn   = []byte{0x02, 0xF8, 0x39}
	tac    = []byte{0x00, 0x00, 0x01}
	cellID = []byte{0x00, 0x00, 0x00, 0x00, 0x10}
	nasPDU = []byte{0x7E, 0x02, 0x01}
)

// nrLocation is a userLocationInformationNR without time stamp or
// extensions.
func nrLocation() *asn.Value {
	return asn.NewChoice(1, asn.NewSequence(
		asn.NewSequence(asn.NewOctetString(plmn), asn.NewBitString(cellID, 36), nil),
		asn.NewSequence(asn.NewOctetString(plmn), asn.NewOctetString(tac), nil),
		nil,
		nil,
	))
}

func field(t testing.TB, message *asn.Type, name string, criticality uint64, v *asn.Value) *asn.Value {
	t.Helper()
	ie, err := NewProtocolIE(message, name, criticality, v)
	require.NoError(t, err)
	return ie
}

func initialUEMessage(t testing.TB) *asn.Value {
	message := NewMessage(
		field(t, InitialUEMessage, "RAN-UE-NGAP-ID", Reject, asn.NewInteger(1)),
		field(t, InitialUEMessage, "NAS-PDU", Reject, asn.NewOctetString([]byte{0x7E, 0x00, 0x41, 0x79, 0x00, 0x0D})),
		field(t, InitialUEMessage, "UserLocationInformation", Reject, nrLocation()),
		field(t, InitialUEMessage, "RRCEstablishmentCause", Ignore, asn.NewEnumerated(3)),
		field(t, InitialUEMessage, "UEContextRequest", Ignore, asn.NewEnumerated(0)),
	)
	pdu, err := NewPDU("initiatingMessage", Ignore, "InitialUEMessage", message)
	require.NoError(t, err)
	return pdu
}

func ngSetupFailure(t testing.TB) *asn.Value {
	cause := asn.NewChoice(4, asn.NewEnumerated(5))
	message := NewMessage(field(t, NGSetupFailure, "Cause", Ignore, cause))
	pdu, err := NewPDU("unsuccessfulOutcome", Reject, "NGSetupFailure", message)
	require.NoError(t, err)
	return pdu
}

func uplinkNASTransport(t testing.TB) *asn.Value {
	message := NewMessage(
		field(t, UplinkNASTransport, "AMF-UE-NGAP-ID", Reject, asn.NewInteger(1)),
		field(t, UplinkNASTransport, "RAN-UE-NGAP-ID", Reject, asn.NewInteger(1)),
		field(t, UplinkNASTransport, "NAS-PDU", Reject, asn.NewOctetString(nasPDU)),
		field(t, UplinkNASTransport, "UserLocationInformation", Ignore, nrLocation()),
	)
	pdu, err := NewPDU("initiatingMessage", Ignore, "UplinkNASTransport", message)
	require.NoError(t, err)
	return pdu
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, fuzz.Modules(), Module)
	for _, codec := range fuzz.Codecs {
		h, err := fuzz.Lookup(Module, codec)
		require.NoError(t, err)
		assert.Same(t, NGAPPDU, h.Root())
	}
	require.NoError(t, per.Supported(NGAPPDU))
}

func TestNGSetupFailureAligned(t *testing.T) {
	data, err := per.Marshal(NGAPPDU, ngSetupFailure(t), true)
	require.NoError(t, err)
	assert.Equal(t, "40150008000001000f40018a", hex.EncodeToString(data))
}

func TestMessagesRoundTrip(t *testing.T) {
	pdus := map[string]*asn.Value{
		"INITIAL_UE_MESSAGE": initialUEMessage(t),
		"NG_SETUP_FAILURE":   ngSetupFailure(t),
		"UPLINK_NAS":         uplinkNASTransport(t),
	}
	for name, pdu := range pdus {
		for _, codec := range fuzz.Codecs {
			t.Run(fmt.Sprintf("%s_%s", name, codec), func(t *testing.T) {
				encoded, err := per.Marshal(NGAPPDU, pdu, codec.Aligned())
				require.NoError(t, err)
				decoded, err := per.Unmarshal(NGAPPDU, encoded, codec.Aligned())
				require.NoError(t, err)
				assert.True(t, pdu.Equal(decoded), "got %s", decoded.Format(NGAPPDU))

				h, err := fuzz.Lookup(Module, codec)
				require.NoError(t, err)
				seed, err := h.DestructureBytes(encoded)
				require.NoError(t, err)
				again, err := h.StructureBytes(seed)
				require.NoError(t, err)
				assert.Equal(t, hex.EncodeToString(encoded), hex.EncodeToString(again))
			})
		}
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := NewProtocolIE(InitialUEMessage, "Bogus", Reject, asn.NewNull())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = NewProtocolIE(InitialUEMessage, "AMFName", Reject, asn.NewNull())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = NewProtocolIE(TAI, "NAS-PDU", Reject, asn.NewNull())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = NewPDU("bogus", Reject, "NGSetupRequest", NewMessage())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = NewPDU("successfulOutcome", Reject, "NGSetupRequest", NewMessage())
	assert.ErrorIs(t, err, errors.ErrArgs)
}

func TestTableKeys(t *testing.T) {
	ie, err := NewProtocolIE(UplinkNASTransport, "UserLocationInformation", Ignore, nrLocation())
	require.NoError(t, err)
	assert.Equal(t, int64(121), ie.Components[0].Int)

	pdu := ngSetupFailure(t)
	assert.Equal(t, uint64(2), pdu.Index)
	assert.Equal(t, int64(ProcedureNGSetup), pdu.Alt.Components[0].Int)

	pdu = uplinkNASTransport(t)
	assert.Equal(t, int64(ProcedureUplinkNASTransport), pdu.Alt.Components[0].Int)
	assert.Contains(t, pdu.Format(NGAPPDU), "value UplinkNASTransport : ")
}

// free5gcNGSetupFailure mirrors ngSetupFailure with the free5gc types.
func free5gcNGSetupFailure() ngapType.NGAPPDU {
	var pdu ngapType.NGAPPDU
	pdu.Present = ngapType.NGAPPDUPresentUnsuccessfulOutcome
	pdu.UnsuccessfulOutcome = new(ngapType.UnsuccessfulOutcome)

	outcome := pdu.UnsuccessfulOutcome
	outcome.ProcedureCode.Value = ngapType.ProcedureCodeNGSetup
	outcome.Criticality.Value = ngapType.CriticalityPresentReject
	outcome.Value.Present = ngapType.UnsuccessfulOutcomePresentNGSetupFailure
	outcome.Value.NGSetupFailure = new(ngapType.NGSetupFailure)

	ies := &outcome.Value.NGSetupFailure.ProtocolIEs
	causeIE := ngapType.NGSetupFailureIEs{}
	causeIE.Id.Value = ngapType.ProtocolIEIDCause
	causeIE.Criticality.Value = ngapType.CriticalityPresentIgnore
	causeIE.Value.Present = ngapType.NGSetupFailureIEsPresentCause
	causeIE.Value.Cause = &ngapType.Cause{
		Present: ngapType.CausePresentMisc,
		Misc:    &ngapType.CauseMisc{Value: ngapType.CauseMiscPresentUnspecified},
	}
	ies.List = append(ies.List, causeIE)
	return pdu
}

// free5gcUplinkNASTransport mirrors uplinkNASTransport with the free5gc types.
func free5gcUplinkNASTransport() ngapType.NGAPPDU {
	var pdu ngapType.NGAPPDU
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeUplinkNASTransport
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentUplinkNASTransport
	initiatingMessage.Value.UplinkNASTransport = new(ngapType.UplinkNASTransport)

	ies := &initiatingMessage.Value.UplinkNASTransport.ProtocolIEs

	amfUeNgapIDIE := ngapType.UplinkNASTransportIEs{}
	amfUeNgapIDIE.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
	amfUeNgapIDIE.Criticality.Value = ngapType.CriticalityPresentReject
	amfUeNgapIDIE.Value.Present = ngapType.UplinkNASTransportIEsPresentAMFUENGAPID
	amfUeNgapIDIE.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: 1}
	ies.List = append(ies.List, amfUeNgapIDIE)

	ranUeNgapIDIE := ngapType.UplinkNASTransportIEs{}
	ranUeNgapIDIE.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ranUeNgapIDIE.Criticality.Value = ngapType.CriticalityPresentReject
	ranUeNgapIDIE.Value.Present = ngapType.UplinkNASTransportIEsPresentRANUENGAPID
	ranUeNgapIDIE.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: 1}
	ies.List = append(ies.List, ranUeNgapIDIE)

	nasPDUIE := ngapType.UplinkNASTransportIEs{}
	nasPDUIE.Id.Value = ngapType.ProtocolIEIDNASPDU
	nasPDUIE.Criticality.Value = ngapType.CriticalityPresentReject
	nasPDUIE.Value.Present = ngapType.UplinkNASTransportIEsPresentNASPDU
	nasPDUIE.Value.NASPDU = &ngapType.NASPDU{Value: aper.OctetString(nasPDU)}
	ies.List = append(ies.List, nasPDUIE)

	locationIE := ngapType.UplinkNASTransportIEs{}
	locationIE.Id.Value = ngapType.ProtocolIEIDUserLocationInformation
	locationIE.Criticality.Value = ngapType.CriticalityPresentIgnore
	locationIE.Value.Present = ngapType.UplinkNASTransportIEsPresentUserLocationInformation
	locationIE.Value.UserLocationInformation = &ngapType.UserLocationInformation{
		Present: ngapType.UserLocationInformationPresentUserLocationInformationNR,
		UserLocationInformationNR: &ngapType.UserLocationInformationNR{
			NRCGI: ngapType.NRCGI{
				PLMNIdentity: ngapType.PLMNIdentity{Value: aper.OctetString(plmn)},
				NRCellIdentity: ngapType.NRCellIdentity{
					Value: aper.BitString{Bytes: cellID, BitLength: 36},
				},
			},
			TAI: ngapType.TAI{
				PLMNIdentity: ngapType.PLMNIdentity{Value: aper.OctetString(plmn)},
				TAC:          ngapType.TAC{Value: aper.OctetString(tac)},
			},
		},
	}
	ies.List = append(ies.List, locationIE)
	return pdu
}

// TestPDUsAgainstFree5gc compares ALIGNED encodings of whole PDUs with the
// free5gc NGAP encoder.
func TestPDUsAgainstFree5gc(t *testing.T) {
	tests := []struct {
		name   string
		native ngapType.NGAPPDU
		value  *asn.Value
		output string
	}{
		{"NG_SETUP_FAILURE", free5gcNGSetupFailure(), ngSetupFailure(t), "40150008000001000f40018a"},
		{
			"UPLINK_NAS_TRANSPORT",
			free5gcUplinkNASTransport(),
			uplinkNASTransport(t),
			"002e402a000004000a000200010055000200010026000403" + "7e0201" +
				"0079400f4002f839000000001002f839000001",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expected, err := ngap.Encoder(tc.native)
			require.NoError(t, err)
			assert.Equal(t, tc.output, hex.EncodeToString(expected))

			data, err := per.Marshal(NGAPPDU, tc.value, true)
			require.NoError(t, err)
			assert.Equal(t, hex.EncodeToString(expected), hex.EncodeToString(data))

			decoded, err := per.Unmarshal(NGAPPDU, expected, true)
			require.NoError(t, err)
			assert.True(t, tc.value.Equal(decoded), "got %s", decoded.Format(NGAPPDU))
		})
	}
}

// assertRows checks that every table-selected component of v carries the
// type of the row its key names.
func assertRows(t *testing.T, typ *asn.Type, v *asn.Value) {
	t.Helper()
	if nil == v {
		return
	}
	switch typ.Kind {
	case asn.Sequence:
		for i, c := range typ.Components {
			if i >= len(v.Components) || nil == v.Components[i] {
				continue
			}
			sub := c.Type
			if nil != c.Table {
				row, ok := typ.Row(i, v.Components)
				require.True(t, ok, "%s.%s has no row", typ.Label(), c.Name)
				sub = row.Type
			}
			assertRows(t, sub, v.Components[i])
		}
	case asn.SequenceOf:
		for _, item := range v.Items {
			assertRows(t, typ.Element, item)
		}
	case asn.Choice:
		if alt, ok := typ.Alternative(v.Index); ok {
			assertRows(t, alt.Type, v.Alt)
		}
	}
}

func TestGeneratedKeysMatchRows(t *testing.T) {
	rng := rand.New(rand.NewPCG(38, 413))
	generated := 0
	for range 256 {
		seed := make([]byte, 512)
		for i := range seed {
			seed[i] = byte(rng.Uint32())
		}
		pdu, err := entropy.Generate(NGAPPDU, entropy.NewSource(seed))
		if nil != err {
			continue
		}
		generated++
		assertRows(t, NGAPPDU, pdu)

		for _, codec := range fuzz.Codecs {
			encoded, err := per.Marshal(NGAPPDU, pdu, codec.Aligned())
			require.NoError(t, err)
			decoded, err := per.Unmarshal(NGAPPDU, encoded, codec.Aligned())
			require.NoError(t, err)
			assert.True(t, pdu.Equal(decoded))
		}
	}
	assert.Positive(t, generated)
}

// TestInformationElementsAgainstFree5gc compares ALIGNED encodings of single
// IE types with the free5gc codec.
func TestInformationElementsAgainstFree5gc(t *testing.T) {
	tests := []struct {
		name   string
		native any
		params string
		typ    *asn.Type
		value  *asn.Value
	}{
		{"AMF_UE_NGAP_ID", int64(1), "valueLB:0,valueUB:1099511627775", AMFUENGAPID, asn.NewInteger(1)},
		{"AMF_UE_NGAP_ID_LARGE", int64(1099511627775), "valueLB:0,valueUB:1099511627775", AMFUENGAPID, asn.NewInteger(1099511627775)},
		{"PAGING_DRX", aper.Enumerated(2), "valueExt,valueLB:0,valueUB:3", PagingDRX, asn.NewEnumerated(2)},
		{"NAS_PDU", aper.OctetString{0x7E, 0x00, 0x41}, "", NASPDU, asn.NewOctetString([]byte{0x7E, 0x00, 0x41})},
		{"TAC", aper.OctetString{0x00, 0x00, 0x01}, "sizeLB:3,sizeUB:3", TAC, asn.NewOctetString([]byte{0x00, 0x00, 0x01})},
		{
			"GNB_ID",
			aper.BitString{Bytes: []byte{0x00, 0x00, 0x04}, BitLength: 22},
			"sizeLB:22,sizeUB:32",
			GNBID.Alternatives[0].Type,
			asn.NewBitString([]byte{0x00, 0x00, 0x04}, 22),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expected, err := aper.MarshalWithParams(tc.native, tc.params)
			require.NoError(t, err)

			data, err := per.Marshal(tc.typ, tc.value, true)
			require.NoError(t, err)
			assert.Equal(t, hex.EncodeToString(expected), hex.EncodeToString(data))
		})
	}
}

func FuzzNGAP(f *testing.F) {
	for _, codec := range fuzz.Codecs {
		h, err := fuzz.Lookup(Module, codec)
		require.NoError(f, err)
		for _, pdu := range []func(testing.TB) *asn.Value{initialUEMessage, ngSetupFailure, uplinkNASTransport} {
			encoded, err := per.Marshal(NGAPPDU, pdu(f), codec.Aligned())
			require.NoError(f, err)
			seed, err := h.DestructureBytes(encoded)
			require.NoError(f, err)
			f.Add(seed)
		}
	}

	h, err := fuzz.New(NGAPPDU, fuzz.APER, fuzz.Options{EntropyCap: 4096})
	require.NoError(f, err)
	f.Fuzz(func(t *testing.T, in []byte) {
		encoded, err := h.StructureBytes(in)
		if nil != err {
			kind, ok := errors.KindOf(err)
			require.True(t, ok)
			require.Contains(t, []errors.Kind{errors.KindEntropic, errors.KindEncoding}, kind)
			return
		}
		seed, err := h.DestructureBytes(encoded)
		require.NoError(t, err)
		again, err := h.StructureBytes(seed)
		require.NoError(t, err)
		require.Equal(t, encoded, again)
	})
}

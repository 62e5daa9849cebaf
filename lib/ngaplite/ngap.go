// Package ngaplite declares a subset of the NG Application Protocol
// (3GPP TS 38.413) abstract syntax and registers it as the "ngap" module.
//
// Protocol IE values and elementary procedure values are open types chosen
// through information object tables keyed by the IE id and the procedure
// code. Extension containers keep their real shape, but no extension IE is
// modelled, so their values are empty open types.
package ngaplite

import (
	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/fuzz"
)

// Module is the name the schema is registered under.
const Module = "ngap"

const (
	maxProtocolExtensions = 65535
	maxProtocolIEs        = 65535
	maxnoofAllowedSNSSAIs = 8
	maxnoofBPLMNs         = 12
	maxnoofPLMNs          = 12
	maxnoofServedGUAMIs   = 256
	maxnoofSliceItems     = 1024
	maxnoofTACs           = 256
)

// Elementary procedure codes.
const (
	ProcedureDownlinkNASTransport = 4
	ProcedureInitialUEMessage     = 15
	ProcedureNGSetup              = 21
	ProcedureUplinkNASTransport   = 46
)

// Criticality values.
const (
	Reject uint64 = iota
	Ignore
	Notify
)

// ProtocolIEIDs maps IE names, as used for the rows of the IE value tables,
// to their id.
var ProtocolIEIDs = map[string]int64{
	"AllowedNSSAI":            0,
	"AMFName":                 1,
	"AMF-UE-NGAP-ID":          10,
	"Cause":                   15,
	"DefaultPagingDRX":        21,
	"FiveG-S-TMSI":            26,
	"GlobalRANNodeID":         27,
	"IndexToRFSP":             31,
	"NAS-PDU":                 38,
	"OldAMF":                  48,
	"PLMNSupportList":         80,
	"RANNodeName":             82,
	"RANPagingPriority":       83,
	"RAN-UE-NGAP-ID":          85,
	"RelativeAMFCapacity":     86,
	"RRCEstablishmentCause":   90,
	"ServedGUAMIList":         96,
	"SupportedTAList":         102,
	"TimeToWait":              107,
	"UEContextRequest":        112,
	"UserLocationInformation": 121,
}

func size(lo, hi uint64) constraint.Size {
	return constraint.MustSizeRange(lo, hi)
}

func enumerated(name string, extensible bool, root []string, extension ...string) *asn.Type {
	return asn.EnumeratedType(name, constraint.MustEnumeration(root, extensible, extension...))
}

// 9.3 Information Element Definitions
var (
	// ProcedureCode ::= INTEGER (0..255)
	ProcedureCode = asn.IntegerType("ProcedureCode", constraint.MustRange(0, 255))

	// ProtocolIE-ID ::= INTEGER (0..maxProtocolIEs)
	ProtocolIEID = asn.IntegerType("ProtocolIE-ID", constraint.MustRange(0, maxProtocolIEs))

	// ProtocolExtensionID ::= INTEGER (0..maxProtocolExtensions)
	ProtocolExtensionID = asn.IntegerType("ProtocolExtensionID", constraint.MustRange(0, maxProtocolExtensions))

	// Criticality ::= ENUMERATED { reject, ignore, notify }
	Criticality = enumerated("Criticality", false, []string{"reject", "ignore", "notify"})

	// AMF-UE-NGAP-ID ::= INTEGER (0..1099511627775)
	AMFUENGAPID = asn.IntegerType("AMF-UE-NGAP-ID", constraint.MustRange(0, 1099511627775))

	// RAN-UE-NGAP-ID ::= INTEGER (0..4294967295)
	RANUENGAPID = asn.IntegerType("RAN-UE-NGAP-ID", constraint.MustRange(0, 4294967295))

	// NAS-PDU ::= OCTET STRING
	NASPDU = asn.OctetStringType("NAS-PDU", constraint.AnySize())

	// PLMNIdentity ::= OCTET STRING (SIZE(3))
	PLMNIdentity = asn.OctetStringType("PLMNIdentity", constraint.FixedSize(3))

	// TAC ::= OCTET STRING (SIZE(3))
	TAC = asn.OctetStringType("TAC", constraint.FixedSize(3))

	// NRCellIdentity ::= BIT STRING (SIZE(36))
	NRCellIdentity = asn.BitStringType("NRCellIdentity", constraint.FixedSize(36))

	// EUTRACellIdentity ::= BIT STRING (SIZE(28))
	EUTRACellIdentity = asn.BitStringType("EUTRACellIdentity", constraint.FixedSize(28))

	// TimeStamp ::= OCTET STRING (SIZE(4))
	TimeStamp = asn.OctetStringType("TimeStamp", constraint.FixedSize(4))

	// TransportLayerAddress ::= BIT STRING (SIZE(1..160, ...))
	TransportLayerAddress = asn.BitStringType("TransportLayerAddress", size(1, 160).Extensible())

	// PortNumber ::= OCTET STRING (SIZE(2))
	PortNumber = asn.OctetStringType("PortNumber", constraint.FixedSize(2))

	// AMFName ::= PrintableString (SIZE(1..150, ...))
	AMFName = asn.CharacterStringType("AMFName", constraint.Printable, size(1, 150).Extensible())

	// RANNodeName ::= PrintableString (SIZE(1..150, ...))
	RANNodeName = asn.CharacterStringType("RANNodeName", constraint.Printable, size(1, 150).Extensible())

	// RelativeAMFCapacity ::= INTEGER (0..255)
	RelativeAMFCapacity = asn.IntegerType("RelativeAMFCapacity", constraint.MustRange(0, 255))

	// RANPagingPriority ::= INTEGER (1..256)
	RANPagingPriority = asn.IntegerType("RANPagingPriority", constraint.MustRange(1, 256))

	// IndexToRFSP ::= INTEGER (1..256, ...)
	IndexToRFSP = asn.IntegerType("IndexToRFSP", constraint.MustRange(1, 256).Extensible())

	// AMFRegionID ::= BIT STRING (SIZE(8))
	AMFRegionID = asn.BitStringType("AMFRegionID", constraint.FixedSize(8))

	// AMFSetID ::= BIT STRING (SIZE(10))
	AMFSetID = asn.BitStringType("AMFSetID", constraint.FixedSize(10))

	// AMFPointer ::= BIT STRING (SIZE(6))
	AMFPointer = asn.BitStringType("AMFPointer", constraint.FixedSize(6))

	// PagingDRX ::= ENUMERATED { v32, v64, v128, v256, ... }
	PagingDRX = enumerated("PagingDRX", true, []string{"v32", "v64", "v128", "v256"})

	// RRCEstablishmentCause ::= ENUMERATED {
	//     emergency, highPriorityAccess, mt-Access, mo-Signalling, mo-Data,
	//     mo-VoiceCall, mo-VideoCall, mo-SMS, mps-PriorityAccess,
	//     mcs-PriorityAccess, ..., notAvailable, mo-ExceptionData
	// }
	RRCEstablishmentCause = enumerated("RRCEstablishmentCause", true,
		[]string{
			"emergency", "highPriorityAccess", "mt-Access", "mo-Signalling", "mo-Data",
			"mo-VoiceCall", "mo-VideoCall", "mo-SMS", "mps-PriorityAccess", "mcs-PriorityAccess",
		},
		"notAvailable", "mo-ExceptionData",
	)

	// UEContextRequest ::= ENUMERATED { requested, ... }
	UEContextRequest = enumerated("UEContextRequest", true, []string{"requested"})

	// TimeToWait ::= ENUMERATED { v1s, v2s, v5s, v10s, v20s, v60s, ... }
	TimeToWait = enumerated("TimeToWait", true, []string{"v1s", "v2s", "v5s", "v10s", "v20s", "v60s"})
)

// 9.3.7 Container Definitions
var (
	// ProtocolExtensionContainer ::= SEQUENCE (SIZE(1..maxProtocolExtensions)) OF ProtocolExtensionField
	ProtocolExtensionContainer = asn.SequenceOfType("ProtocolExtensionContainer", size(1, maxProtocolExtensions),
		asn.SequenceType("ProtocolExtensionField", false,
			asn.Field("id", ProtocolExtensionID),
			asn.Field("criticality", Criticality),
			asn.OpenField("extensionValue", asn.NullType("")),
		),
	)

	// ProtocolIE-SingleContainer ::= ProtocolIE-Field
	ProtocolIESingleContainer = asn.SequenceType("ProtocolIE-SingleContainer", false,
		asn.Field("id", ProtocolIEID),
		asn.Field("criticality", Criticality),
		asn.OpenField("value", asn.NullType("")),
	)
)

// extended declares SEQUENCE { components, iE-Extensions OPTIONAL, ... }.
func extended(name string, components ...asn.Component) *asn.Type {
	components = append(components, asn.Optional("iE-Extensions", ProtocolExtensionContainer))
	return asn.SequenceType(name, true, components...)
}

// choice declares CHOICE { alternatives, choice-Extensions }.
func choice(name string, alternatives ...asn.Component) *asn.Type {
	alternatives = append(alternatives, asn.Field("choice-Extensions", ProtocolIESingleContainer))
	return asn.ChoiceType(name, false, alternatives)
}

// 9.3.1.24 S-NSSAI
var (
	// S-NSSAI ::= SEQUENCE { sST SST, sD SD OPTIONAL, iE-Extensions OPTIONAL, ... }
	SNSSAI = extended("S-NSSAI",
		asn.Field("sST", asn.OctetStringType("SST", constraint.FixedSize(1))),
		asn.Optional("sD", asn.OctetStringType("SD", constraint.FixedSize(3))),
	)

	// SliceSupportList ::= SEQUENCE (SIZE(1..maxnoofSliceItems)) OF SliceSupportItem
	SliceSupportList = asn.SequenceOfType("SliceSupportList", size(1, maxnoofSliceItems),
		extended("SliceSupportItem", asn.Field("s-NSSAI", SNSSAI)),
	)

	// AllowedNSSAI ::= SEQUENCE (SIZE(1..maxnoofAllowedS-NSSAIs)) OF AllowedNSSAI-Item
	AllowedNSSAI = asn.SequenceOfType("AllowedNSSAI", size(1, maxnoofAllowedSNSSAIs),
		extended("AllowedNSSAI-Item", asn.Field("s-NSSAI", SNSSAI)),
	)
)

// 9.3.1.5 Global RAN Node ID
var (
	// GNB-ID ::= CHOICE { gNB-ID BIT STRING (SIZE(22..32)), choice-Extensions }
	GNBID = choice("GNB-ID",
		asn.Field("gNB-ID", asn.BitStringType("", size(22, 32))),
	)

	// GlobalGNB-ID ::= SEQUENCE { pLMNIdentity, gNB-ID, iE-Extensions OPTIONAL, ... }
	GlobalGNBID = extended("GlobalGNB-ID",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("gNB-ID", GNBID),
	)

	// NgENB-ID ::= CHOICE {
	//     macroNgENB-ID BIT STRING (SIZE(20)),
	//     shortMacroNgENB-ID BIT STRING (SIZE(18)),
	//     longMacroNgENB-ID BIT STRING (SIZE(21)),
	//     choice-Extensions
	// }
	NgENBID = choice("NgENB-ID",
		asn.Field("macroNgENB-ID", asn.BitStringType("", constraint.FixedSize(20))),
		asn.Field("shortMacroNgENB-ID", asn.BitStringType("", constraint.FixedSize(18))),
		asn.Field("longMacroNgENB-ID", asn.BitStringType("", constraint.FixedSize(21))),
	)

	// GlobalNgENB-ID ::= SEQUENCE { pLMNIdentity, ngENB-ID, iE-Extensions OPTIONAL, ... }
	GlobalNgENBID = extended("GlobalNgENB-ID",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("ngENB-ID", NgENBID),
	)

	// GlobalN3IWF-ID ::= SEQUENCE { pLMNIdentity, n3IWF-ID, iE-Extensions OPTIONAL, ... }
	GlobalN3IWFID = extended("GlobalN3IWF-ID",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("n3IWF-ID", choice("N3IWF-ID",
			asn.Field("n3IWF-ID", asn.BitStringType("", constraint.FixedSize(16))),
		)),
	)

	// GlobalRANNodeID ::= CHOICE { globalGNB-ID, globalNgENB-ID, globalN3IWF-ID, choice-Extensions }
	GlobalRANNodeID = choice("GlobalRANNodeID",
		asn.Field("globalGNB-ID", GlobalGNBID),
		asn.Field("globalNgENB-ID", GlobalNgENBID),
		asn.Field("globalN3IWF-ID", GlobalN3IWFID),
	)
)

// 9.3.1.16 User Location Information
var (
	// TAI ::= SEQUENCE { pLMNIdentity, tAC, iE-Extensions OPTIONAL, ... }
	TAI = extended("TAI",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("tAC", TAC),
	)

	// NR-CGI ::= SEQUENCE { pLMNIdentity, nRCellIdentity, iE-Extensions OPTIONAL, ... }
	NRCGI = extended("NR-CGI",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("nRCellIdentity", NRCellIdentity),
	)

	// EUTRA-CGI ::= SEQUENCE { pLMNIdentity, eUTRACellIdentity, iE-Extensions OPTIONAL, ... }
	EUTRACGI = extended("EUTRA-CGI",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("eUTRACellIdentity", EUTRACellIdentity),
	)

	// UserLocationInformation ::= CHOICE {
	//     userLocationInformationEUTRA, userLocationInformationNR,
	//     userLocationInformationN3IWF, choice-Extensions
	// }
	UserLocationInformation = choice("UserLocationInformation",
		asn.Field("userLocationInformationEUTRA", extended("UserLocationInformationEUTRA",
			asn.Field("eUTRA-CGI", EUTRACGI),
			asn.Field("tAI", TAI),
			asn.Optional("timeStamp", TimeStamp),
		)),
		asn.Field("userLocationInformationNR", extended("UserLocationInformationNR",
			asn.Field("nR-CGI", NRCGI),
			asn.Field("tAI", TAI),
			asn.Optional("timeStamp", TimeStamp),
		)),
		asn.Field("userLocationInformationN3IWF", extended("UserLocationInformationN3IWF",
			asn.Field("iPAddress", TransportLayerAddress),
			asn.Field("portNumber", PortNumber),
		)),
	)

	// FiveG-S-TMSI ::= SEQUENCE { aMFSetID, aMFPointer, fiveG-TMSI, iE-Extensions OPTIONAL, ... }
	FiveGSTMSI = extended("FiveG-S-TMSI",
		asn.Field("aMFSetID", AMFSetID),
		asn.Field("aMFPointer", AMFPointer),
		asn.Field("fiveG-TMSI", asn.OctetStringType("FiveG-TMSI", constraint.FixedSize(4))),
	)
)

// Lists carried by NG SETUP
var (
	// SupportedTAList ::= SEQUENCE (SIZE(1..maxnoofTACs)) OF SupportedTAItem
	SupportedTAList = asn.SequenceOfType("SupportedTAList", size(1, maxnoofTACs),
		extended("SupportedTAItem",
			asn.Field("tAC", TAC),
			asn.Field("broadcastPLMNList", asn.SequenceOfType("BroadcastPLMNList", size(1, maxnoofBPLMNs),
				extended("BroadcastPLMNItem",
					asn.Field("pLMNIdentity", PLMNIdentity),
					asn.Field("tAISliceSupportList", SliceSupportList),
				),
			)),
		),
	)

	// GUAMI ::= SEQUENCE { pLMNIdentity, aMFRegionID, aMFSetID, aMFPointer, iE-Extensions OPTIONAL, ... }
	GUAMI = extended("GUAMI",
		asn.Field("pLMNIdentity", PLMNIdentity),
		asn.Field("aMFRegionID", AMFRegionID),
		asn.Field("aMFSetID", AMFSetID),
		asn.Field("aMFPointer", AMFPointer),
	)

	// ServedGUAMIList ::= SEQUENCE (SIZE(1..maxnoofServedGUAMIs)) OF ServedGUAMIItem
	ServedGUAMIList = asn.SequenceOfType("ServedGUAMIList", size(1, maxnoofServedGUAMIs),
		extended("ServedGUAMIItem",
			asn.Field("gUAMI", GUAMI),
			asn.Optional("backupAMFName", AMFName),
		),
	)

	// PLMNSupportList ::= SEQUENCE (SIZE(1..maxnoofPLMNs)) OF PLMNSupportItem
	PLMNSupportList = asn.SequenceOfType("PLMNSupportList", size(1, maxnoofPLMNs),
		extended("PLMNSupportItem",
			asn.Field("pLMNIdentity", PLMNIdentity),
			asn.Field("sliceSupportList", SliceSupportList),
		),
	)
)

// 9.3.1.2 Cause
//
//	Cause ::= CHOICE { radioNetwork, transport, nas, protocol, misc, choice-Extensions }
var Cause = choice("Cause",
	asn.Field("radioNetwork", enumerated("CauseRadioNetwork", true, []string{
		"unspecified", "txnrelocoverall-expiry", "successful-handover", "release-due-to-ngran-generated-reason",
		"release-due-to-5gc-generated-reason", "handover-cancelled", "partial-handover",
		"ho-failure-in-target-5GC-ngran-node-or-target-system", "ho-target-not-allowed",
		"tngrelocoverall-expiry", "tngrelocprep-expiry", "cell-not-available",
		"unknown-targetID", "no-radio-resources-available-in-target-cell", "unknown-local-UE-NGAP-ID",
		"inconsistent-remote-UE-NGAP-ID", "handover-desirable-for-radio-reason",
		"time-critical-handover", "resource-optimisation-handover", "reduce-load-in-serving-cell",
		"user-inactivity", "radio-connection-with-ue-lost", "radio-resources-not-available",
		"invalid-qos-combination", "failure-in-radio-interface-procedure",
		"interaction-with-other-procedure", "unknown-PDU-session-ID", "unkown-qos-flow-ID",
		"multiple-PDU-session-ID-instances", "multiple-qos-flow-ID-instances",
		"encryption-and-or-integrity-protection-algorithms-not-supported",
		"ng-intra-system-handover-triggered", "ng-inter-system-handover-triggered",
		"xn-handover-triggered", "not-supported-5QI-value", "ue-context-transfer",
		"ims-voice-eps-fallback-or-rat-fallback-triggered", "up-integrity-protection-not-possible",
		"up-confidentiality-protection-not-possible", "slice-not-supported",
		"ue-in-rrc-inactive-state-not-reachable", "redirection", "resources-not-available-for-the-slice",
		"ue-max-integrity-protected-data-rate-reason", "release-due-to-cn-detected-mobility",
	}, "n26-interface-not-available", "release-due-to-pre-emption")),
	asn.Field("transport", enumerated("CauseTransport", true, []string{
		"transport-resource-unavailable", "unspecified",
	})),
	asn.Field("nas", enumerated("CauseNas", true, []string{
		"normal-release", "authentication-failure", "deregister", "unspecified",
	})),
	asn.Field("protocol", enumerated("CauseProtocol", true, []string{
		"transfer-syntax-error", "abstract-syntax-error-reject", "abstract-syntax-error-ignore-and-notify",
		"message-not-compatible-with-receiver-state", "semantic-error",
		"abstract-syntax-error-falsely-constructed-message", "unspecified",
	})),
	asn.Field("misc", enumerated("CauseMisc", true, []string{
		"control-processing-overload", "not-enough-user-plane-processing-resources",
		"hardware-failure", "om-intervention", "unknown-PLMN", "unspecified",
	})),
)

// ie returns the value table row of the named IE.
func ie(name string, t *asn.Type) asn.Row {
	return asn.Row{ID: ProtocolIEIDs[name], Name: name, Type: t}
}

// message declares a message as a protocol IE container whose field values
// are selected by the IE id.
//
//	ProtocolIE-Container ::= SEQUENCE (SIZE(0..maxProtocolIEs)) OF ProtocolIE-Field
//	ProtocolIE-Field ::= SEQUENCE { id, criticality, value }
func message(name string, ies ...asn.Row) *asn.Type {
	field := asn.SequenceType(name+"IEs", false,
		asn.Field("id", ProtocolIEID),
		asn.Field("criticality", Criticality),
		asn.TableField("value", "id", ies...),
	)
	return asn.SequenceType(name, true,
		asn.Field("protocolIEs", asn.SequenceOfType("ProtocolIE-Container", size(0, maxProtocolIEs), field)),
	)
}

// 9.2 Message Functional Definition and Content
var (
	NGSetupRequest = message("NGSetupRequest",
		ie("GlobalRANNodeID", GlobalRANNodeID),
		ie("RANNodeName", RANNodeName),
		ie("SupportedTAList", SupportedTAList),
		ie("DefaultPagingDRX", PagingDRX),
	)

	NGSetupResponse = message("NGSetupResponse",
		ie("AMFName", AMFName),
		ie("ServedGUAMIList", ServedGUAMIList),
		ie("RelativeAMFCapacity", RelativeAMFCapacity),
		ie("PLMNSupportList", PLMNSupportList),
	)

	NGSetupFailure = message("NGSetupFailure",
		ie("Cause", Cause),
		ie("TimeToWait", TimeToWait),
	)

	InitialUEMessage = message("InitialUEMessage",
		ie("RAN-UE-NGAP-ID", RANUENGAPID),
		ie("NAS-PDU", NASPDU),
		ie("UserLocationInformation", UserLocationInformation),
		ie("RRCEstablishmentCause", RRCEstablishmentCause),
		ie("FiveG-S-TMSI", FiveGSTMSI),
		ie("UEContextRequest", UEContextRequest),
		ie("AllowedNSSAI", AllowedNSSAI),
	)

	UplinkNASTransport = message("UplinkNASTransport",
		ie("AMF-UE-NGAP-ID", AMFUENGAPID),
		ie("RAN-UE-NGAP-ID", RANUENGAPID),
		ie("NAS-PDU", NASPDU),
		ie("UserLocationInformation", UserLocationInformation),
	)

	DownlinkNASTransport = message("DownlinkNASTransport",
		ie("AMF-UE-NGAP-ID", AMFUENGAPID),
		ie("RAN-UE-NGAP-ID", RANUENGAPID),
		ie("OldAMF", AMFName),
		ie("RANPagingPriority", RANPagingPriority),
		ie("NAS-PDU", NASPDU),
		ie("IndexToRFSP", IndexToRFSP),
		ie("AllowedNSSAI", AllowedNSSAI),
	)
)

// procedure returns the value table row of a message sent by the elementary
// procedure with the given code.
func procedure(code int64, message *asn.Type) asn.Row {
	return asn.Row{ID: code, Name: message.Name, Type: message}
}

func outcome(name string, messages ...asn.Row) *asn.Type {
	return asn.SequenceType(name, false,
		asn.Field("procedureCode", ProcedureCode),
		asn.Field("criticality", Criticality),
		asn.TableField("value", "procedureCode", messages...),
	)
}

// 9.4.2 Elementary Procedure Definitions
var (
	InitiatingMessage = outcome("InitiatingMessage",
		procedure(ProcedureNGSetup, NGSetupRequest),
		procedure(ProcedureInitialUEMessage, InitialUEMessage),
		procedure(ProcedureUplinkNASTransport, UplinkNASTransport),
		procedure(ProcedureDownlinkNASTransport, DownlinkNASTransport),
	)

	SuccessfulOutcome = outcome("SuccessfulOutcome",
		procedure(ProcedureNGSetup, NGSetupResponse),
	)

	UnsuccessfulOutcome = outcome("UnsuccessfulOutcome",
		procedure(ProcedureNGSetup, NGSetupFailure),
	)

	// NGAP-PDU ::= CHOICE { initiatingMessage, successfulOutcome, unsuccessfulOutcome, ... }
	NGAPPDU = asn.ChoiceType("NGAP-PDU", true, []asn.Component{
		asn.Field("initiatingMessage", InitiatingMessage),
		asn.Field("successfulOutcome", SuccessfulOutcome),
		asn.Field("unsuccessfulOutcome", UnsuccessfulOutcome),
	})
)

func init() {
	fuzz.MustRegister(Module, NGAPPDU)
}

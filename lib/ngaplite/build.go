package ngaplite

import (
	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// valueTable returns the table selecting the value component of t.
func valueTable(t *asn.Type) (*asn.Table, bool) {
	if nil == t || t.Kind != asn.Sequence {
		return nil, false
	}
	i, ok := t.ComponentIndex("value")
	if !ok || nil == t.Components[i].Table {
		return nil, false
	}
	return t.Components[i].Table, true
}

// NewProtocolIE returns a ProtocolIE-Field of message carrying v as the IE
// called name. The id is taken from the row of the message's IE table.
func NewProtocolIE(message *asn.Type, name string, criticality uint64, v *asn.Value) (*asn.Value, error) {
	if nil == message || message.Kind != asn.Sequence || len(message.Components) != 1 ||
		nil == message.Components[0].Type.Element {
		return nil, errors.Args("not a protocol IE message")
	}
	tb, ok := valueTable(message.Components[0].Type.Element)
	if !ok {
		return nil, errors.Args("not a protocol IE message")
	}
	row, ok := tb.Find(name)
	if !ok {
		return nil, errors.Args("%s does not carry %s", message.Label(), name)
	}
	return asn.NewSequence(asn.NewInteger(row.ID), asn.NewEnumerated(criticality), v), nil
}

// NewMessage returns a message value holding ies in order.
func NewMessage(ies ...*asn.Value) *asn.Value {
	return asn.NewSequence(asn.NewSequenceOf(ies...))
}

// NewPDU wraps message, a value of the message type called name, in the
// NGAP-PDU alternative kind ("initiatingMessage", "successfulOutcome" or
// "unsuccessfulOutcome"). The procedure code is the one whose row carries
// name.
func NewPDU(kind string, criticality uint64, name string, message *asn.Value) (*asn.Value, error) {
	outer, ok := NGAPPDU.AlternativeIndex(kind)
	if !ok {
		return nil, errors.Args("unknown NGAP-PDU alternative %q", kind)
	}
	alt, _ := NGAPPDU.Alternative(outer)
	tb, _ := valueTable(alt.Type)
	row, ok := tb.Find(name)
	if !ok {
		return nil, errors.Args("%s does not carry %s", kind, name)
	}
	return asn.NewChoice(outer, asn.NewSequence(
		asn.NewInteger(row.ID),
		asn.NewEnumerated(criticality),
		message,
	)), nil
}

package knx

import (
	"fmt"

	"github.com/vapourismo/knx-go/knx/cemi"
	"github.com/vapourismo/knx-go/knx/dpt"
)

// Value is a typed KNX datapoint value. Exactly one field is meaningful,
// selected by Kind; raw bytes never cross into the rest of the core,
// only Value does.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	Text  string
}

// ValueKind tags which field of Value is populated.
type ValueKind string

const (
	KindBool  ValueKind = "bool"
	KindInt   ValueKind = "int"
	KindFloat ValueKind = "float"
	KindText  ValueKind = "text"
)

// addressDPT associates each group address this core knows about with the
// DPT used to encode/decode its payload. Populated at startup by
// RegisterKNXBindings and RegisterKNXStatusBindings
// (internal/decoder/knx.go) from the configured KNX bindings; Encode and
// DecodeRaw consult it by group address string.
var addressDPT = struct {
	m map[string]string
}{m: make(map[string]string)}

// RegisterAddressDPT declares the DPT used for a given group address.
// Called once per KNX-mapped command/status at startup.
func RegisterAddressDPT(groupAddress, dptName string) {
	addressDPT.m[groupAddress] = dptName
}

// ParseGroupAddress parses a KNX group address in "main/middle/sub" or
// "main/sub" form.
func ParseGroupAddress(s string) (cemi.GroupAddr, error) {
	addr, err := cemi.NewGroupAddrString(s)
	if err != nil {
		return cemi.GroupAddr(0), fmt.Errorf("parse group address %q: %w", s, err)
	}
	return addr, nil
}

// DecodeRaw decodes the wire bytes for a group address into a typed Value,
// looking up the DPT registered for that address.
func DecodeRaw(groupAddress string, data []byte) (Value, error) {
	dptName, ok := addressDPT.m[groupAddress]
	if !ok {
		return Value{}, fmt.Errorf("no dpt registered for group address %s", groupAddress)
	}
	switch dptName {
	case "1.001":
		var v dpt.DPT_1001
		if err := v.Unpack(data); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBool, Bool: bool(v)}, nil
	case "5.001":
		var v dpt.DPT_5001
		if err := v.Unpack(data); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(v)}, nil
	case "7.001":
		var v dpt.DPT_7001
		if err := v.Unpack(data); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(v)}, nil
	case "9.001":
		var v dpt.DPT_9001
		if err := v.Unpack(data); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: float64(v)}, nil
	case "16.001":
		var v dpt.DPT_16001
		if err := v.Unpack(data); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindText, Text: string(v)}, nil
	default:
		return Value{}, fmt.Errorf("unsupported dpt %s for group address %s", dptName, groupAddress)
	}
}

// Encode encodes a typed Value back to wire bytes for the DPT registered
// against groupAddress.
func Encode(groupAddress string, v Value) ([]byte, error) {
	dptName, ok := addressDPT.m[groupAddress]
	if !ok {
		return nil, fmt.Errorf("no dpt registered for group address %s", groupAddress)
	}
	switch dptName {
	case "1.001":
		d := dpt.DPT_1001(v.Bool)
		return d.Pack(), nil
	case "5.001":
		d := dpt.DPT_5001(v.Int)
		return d.Pack(), nil
	case "7.001":
		d := dpt.DPT_7001(v.Int)
		return d.Pack(), nil
	case "9.001":
		d := dpt.DPT_9001(v.Float)
		return d.Pack(), nil
	case "16.001":
		d := dpt.DPT_16001(v.Text)
		return d.Pack(), nil
	default:
		return nil, fmt.Errorf("unsupported dpt %s for group address %s", dptName, groupAddress)
	}
}

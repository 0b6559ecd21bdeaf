package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ParamType is the declared type of an action input or return value.
type ParamType string

// Param type constants
const (
	ParamNone    ParamType = ""
	ParamUint    ParamType = "uint"
	ParamAmount  ParamType = "amount"
	ParamAddress ParamType = "address"
	ParamBool    ParamType = "bool"
	ParamBytes   ParamType = "bytes"
)

// Valid reports whether t is a concrete, known type.
func (t ParamType) Valid() bool {
	switch t {
	case ParamUint, ParamAmount, ParamAddress, ParamBool, ParamBytes:
		return true
	default:
		return false
	}
}

// Value is a typed literal. Only the field matching Type is meaningful.
type Value struct {
	Type    ParamType
	Uint    uint64
	Amount  decimal.Decimal
	Address common.Address
	Bool    bool
	Bytes   []byte
}

// UintValue wraps an unsigned integer (ids, asset ids, indexes).
func UintValue(v uint64) Value {
	return Value{Type: ParamUint, Uint: v}
}

// AmountValue wraps a fixed-point amount or ratio.
func AmountValue(d decimal.Decimal) Value {
	return Value{Type: ParamAmount, Amount: d}
}

// AddressValue wraps an account address.
func AddressValue(a common.Address) Value {
	return Value{Type: ParamAddress, Address: a}
}

// BoolValue wraps a flag.
func BoolValue(b bool) Value {
	return Value{Type: ParamBool, Bool: b}
}

// BytesValue wraps opaque bytes.
func BytesValue(b []byte) Value {
	return Value{Type: ParamBytes, Bytes: append([]byte(nil), b...)}
}

// String returns the canonical text form of the value.
// Amounts drop trailing zeros, so equal amounts render identically.
func (v Value) String() string {
	switch v.Type {
	case ParamUint:
		return strconv.FormatUint(v.Uint, 10)
	case ParamAmount:
		return v.Amount.String()
	case ParamAddress:
		return v.Address.Hex()
	case ParamBool:
		return strconv.FormatBool(v.Bool)
	case ParamBytes:
		return "0x" + hex.EncodeToString(v.Bytes)
	default:
		return ""
	}
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ParamUint:
		return v.Uint == o.Uint
	case ParamAmount:
		return v.Amount.Equal(o.Amount)
	case ParamAddress:
		return v.Address == o.Address
	case ParamBool:
		return v.Bool == o.Bool
	case ParamBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	default:
		return true
	}
}

// ParseValue parses the canonical text form of a value of type t.
func ParseValue(t ParamType, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch t {
	case ParamUint:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse uint %q: %w", s, err)
		}
		return UintValue(n), nil
	case ParamAmount:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse amount %q: %w", s, err)
		}
		return AmountValue(d), nil
	case ParamAddress:
		if !common.IsHexAddress(s) {
			return Value{}, fmt.Errorf("parse address %q: not a hex address", s)
		}
		return AddressValue(common.HexToAddress(s)), nil
	case ParamBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return BoolValue(b), nil
	case ParamBytes:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return Value{}, fmt.Errorf("parse bytes %q: %w", s, err)
		}
		return BytesValue(b), nil
	default:
		return Value{}, fmt.Errorf("parse value: unknown type %q", t)
	}
}

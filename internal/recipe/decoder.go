package recipe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"credit-automation/internal/domain"
	"credit-automation/internal/idhash"
)

// maxCount bounds call and argument counts read from a payload.
const maxCount = 1 << 12

// Lookup resolves action ids to descriptors.
type Lookup interface {
	Descriptor(id domain.ActionID) (domain.ActionDescriptor, bool)
}

// Decode reverses Encode. The decoded recipe is re-validated.
func Decode(payload domain.Payload, lookup Lookup) (domain.Recipe, error) {
	r := bytes.NewReader(payload)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || !bytes.Equal(head, magic) {
		return domain.Recipe{}, fmt.Errorf("%w: bad magic", ErrMalformedPayload)
	}
	name, err := readString(r)
	if err != nil {
		return domain.Recipe{}, err
	}
	ncalls, err := readCount(r)
	if err != nil {
		return domain.Recipe{}, err
	}

	calls := make([]domain.Call, 0, ncalls)
	for i := 0; i < ncalls; i++ {
		var id domain.ActionID
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return domain.Recipe{}, fmt.Errorf("%w: call %d: truncated action id", ErrMalformedPayload, i)
		}
		desc, ok := lookup.Descriptor(id)
		if !ok {
			return domain.Recipe{}, fmt.Errorf("%w: call %d: %s", ErrUnknownAction, i, id.Hex())
		}
		nargs, err := readCount(r)
		if err != nil {
			return domain.Recipe{}, err
		}
		args := make([]domain.Argument, 0, nargs)
		for j := 0; j < nargs; j++ {
			a, err := readArgument(r)
			if err != nil {
				return domain.Recipe{}, fmt.Errorf("call %d arg %d: %w", i, j, err)
			}
			args = append(args, a)
		}
		calls = append(calls, domain.Call{Action: desc, Args: args})
	}
	if r.Len() != 0 {
		return domain.Recipe{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, r.Len())
	}

	if err := Validate(name, calls); err != nil {
		return domain.Recipe{}, err
	}
	return domain.Recipe{Name: name, Calls: calls}, nil
}

// Digest returns the keccak256 digest of a payload.
func Digest(payload domain.Payload) string {
	return idhash.ComputePayloadDigest(payload)
}

// ParseArgument parses the text form of an argument: "$k", "&slot", "%name",
// or a literal of type t.
func ParseArgument(s string, t domain.ParamType) (domain.Argument, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "$"):
		k, err := strconv.Atoi(s[1:])
		if err != nil {
			return domain.Argument{}, fmt.Errorf("%w: bad reference %q", ErrSchema, s)
		}
		return domain.Ret(k), nil
	case strings.HasPrefix(s, "&"):
		return domain.Sub(s[1:]), nil
	case strings.HasPrefix(s, "%"):
		return domain.Runtime(s[1:]), nil
	default:
		v, err := domain.ParseValue(t, s)
		if err != nil {
			return domain.Argument{}, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		return domain.Lit(v), nil
	}
}

func readArgument(r *bytes.Reader) (domain.Argument, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return domain.Argument{}, fmt.Errorf("%w: truncated argument", ErrMalformedPayload)
	}
	switch kind := domain.ArgKind(tag); kind {
	case domain.ArgLiteral:
		typ, err := readString(r)
		if err != nil {
			return domain.Argument{}, err
		}
		text, err := readString(r)
		if err != nil {
			return domain.Argument{}, err
		}
		v, err := domain.ParseValue(domain.ParamType(typ), text)
		if err != nil {
			return domain.Argument{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return domain.Lit(v), nil
	case domain.ArgReturn:
		k, err := binary.ReadUvarint(r)
		if err != nil || k > maxCount {
			return domain.Argument{}, fmt.Errorf("%w: bad reference", ErrMalformedPayload)
		}
		return domain.Ret(int(k)), nil
	case domain.ArgSubSlot, domain.ArgRuntime:
		name, err := readString(r)
		if err != nil {
			return domain.Argument{}, err
		}
		return domain.Argument{Kind: kind, Name: name}, nil
	default:
		return domain.Argument{}, fmt.Errorf("%w: unknown argument tag %d", ErrMalformedPayload, tag)
	}
}

func readCount(r *bytes.Reader) (int, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > maxCount {
		return 0, fmt.Errorf("%w: bad count", ErrMalformedPayload)
	}
	return int(n), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", fmt.Errorf("%w: truncated string", ErrMalformedPayload)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: truncated string", ErrMalformedPayload)
	}
	return string(b), nil
}

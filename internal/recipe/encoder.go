// Package recipe validates recipes and encodes them into byte-exact payloads.
//
// Layout (all integers are unsigned varints):
//
//	"RCP1" | len(name) name | ncalls | { actionID[32] | nargs | { tag | body } }
//
// Argument bodies by tag: literal = len(type) type len(text) text;
// return = k; sub-slot and runtime = len(name) name. Literal text is the
// canonical form from domain.Value.String, so equal inputs encode to equal bytes.
package recipe

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"credit-automation/internal/domain"
)

var magic = []byte("RCP1")

// Encode validates calls and returns the deterministic payload for the recipe.
func Encode(name string, calls []domain.Call) (domain.Payload, error) {
	if err := Validate(name, calls); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(magic)
	writeString(&buf, name)
	writeUvarint(&buf, uint64(len(calls)))
	for _, c := range calls {
		buf.Write(c.Action.ID[:])
		writeUvarint(&buf, uint64(len(c.Args)))
		for _, a := range c.Args {
			buf.WriteByte(byte(a.Kind))
			switch a.Kind {
			case domain.ArgLiteral:
				writeString(&buf, string(a.Value.Type))
				writeString(&buf, a.Value.String())
			case domain.ArgReturn:
				writeUvarint(&buf, uint64(a.Ref))
			case domain.ArgSubSlot, domain.ArgRuntime:
				writeString(&buf, a.Name)
			}
		}
	}
	return buf.Bytes(), nil
}

// EncodeRecipe is Encode for a Recipe value.
func EncodeRecipe(r domain.Recipe) (domain.Payload, error) {
	return Encode(r.Name, r.Calls)
}

// Validate performs the static checks of Encode without producing a payload.
// References are 1-based: call at zero-based position i may reference $1..$i.
func Validate(name string, calls []domain.Call) error {
	if name == "" {
		return fmt.Errorf("%w: empty recipe name", ErrSchema)
	}
	if len(calls) == 0 {
		return fmt.Errorf("%w: recipe %q has no calls", ErrSchema, name)
	}

	for i, c := range calls {
		desc := c.Action
		if desc.Name == "" || desc.ID != domain.ActionIDFor(desc.Name) {
			return fmt.Errorf("%w: call %d: malformed action descriptor %q", ErrSchema, i, desc.Name)
		}
		if len(c.Args) != len(desc.Inputs) {
			return fmt.Errorf("%w: call %d (%s): got %d arguments, want %d",
				ErrSchema, i, desc.Name, len(c.Args), len(desc.Inputs))
		}

		for j, a := range c.Args {
			in := desc.Inputs[j]
			switch a.Kind {
			case domain.ArgLiteral:
				if a.Value.Type != in.Type {
					return fmt.Errorf("%w: call %d (%s): argument %s is %q, want %q",
						ErrSchema, i, desc.Name, in.Name, a.Value.Type, in.Type)
				}
			case domain.ArgReturn:
				if a.Ref < 1 || a.Ref > i {
					return fmt.Errorf("%w: call %d (%s): $%d out of range",
						ErrDanglingReference, i, desc.Name, a.Ref)
				}
				ret := calls[a.Ref-1].Action.Returns
				if ret == domain.ParamNone {
					return fmt.Errorf("%w: call %d (%s): $%d refers to %s which returns nothing",
						ErrDanglingReference, i, desc.Name, a.Ref, calls[a.Ref-1].Action.Name)
				}
				if ret != in.Type {
					return fmt.Errorf("%w: call %d (%s): $%d is %q, want %q",
						ErrSchema, i, desc.Name, a.Ref, ret, in.Type)
				}
			case domain.ArgSubSlot:
				st, ok := domain.SlotType(a.Name)
				if !ok {
					return fmt.Errorf("%w: call %d (%s): unknown subscription slot &%s",
						ErrSchema, i, desc.Name, a.Name)
				}
				if st != in.Type {
					return fmt.Errorf("%w: call %d (%s): &%s is %q, want %q",
						ErrSchema, i, desc.Name, a.Name, st, in.Type)
				}
			case domain.ArgRuntime:
				if a.Name == "" {
					return fmt.Errorf("%w: call %d (%s): empty runtime slot name", ErrSchema, i, desc.Name)
				}
			default:
				return fmt.Errorf("%w: call %d (%s): unknown argument kind %d",
					ErrSchema, i, desc.Name, a.Kind)
			}
		}
	}
	return nil
}

// RuntimeSlots lists the distinct %name placeholders of a recipe in first-use order,
// with the input type each one must satisfy.
func RuntimeSlots(r domain.Recipe) []domain.Param {
	seen := make(map[string]bool)
	var out []domain.Param
	for _, c := range r.Calls {
		for j, a := range c.Args {
			if a.Kind != domain.ArgRuntime || seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			out = append(out, domain.Param{Name: a.Name, Type: c.Action.Inputs[j].Type})
		}
	}
	return out
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

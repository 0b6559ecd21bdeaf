package domain

import "fmt"

// ArgKind tells how an argument obtains its value.
type ArgKind uint8

// Argument kinds
const (
	ArgLiteral ArgKind = iota + 1 // concrete value fixed at encode time
	ArgReturn                     // $k: return value of the k-th call (1-based) of the same recipe
	ArgSubSlot                    // &name: subscription runtime parameter
	ArgRuntime                    // %name: supplied by the caller of execute
)

// Argument is one input of a call.
type Argument struct {
	Kind  ArgKind
	Value Value  // ArgLiteral
	Ref   int    // ArgReturn
	Name  string // ArgSubSlot, ArgRuntime
}

// Lit returns a literal argument.
func Lit(v Value) Argument {
	return Argument{Kind: ArgLiteral, Value: v}
}

// Ret returns a reference to the return value of call k (1-based).
func Ret(k int) Argument {
	return Argument{Kind: ArgReturn, Ref: k}
}

// Sub returns a subscription slot placeholder.
func Sub(name string) Argument {
	return Argument{Kind: ArgSubSlot, Name: name}
}

// Runtime returns a caller-supplied placeholder.
func Runtime(name string) Argument {
	return Argument{Kind: ArgRuntime, Name: name}
}

func (a Argument) String() string {
	switch a.Kind {
	case ArgLiteral:
		return a.Value.String()
	case ArgReturn:
		return fmt.Sprintf("$%d", a.Ref)
	case ArgSubSlot:
		return "&" + a.Name
	case ArgRuntime:
		return "%" + a.Name
	default:
		return "?"
	}
}

// Call binds an action descriptor to its arguments.
type Call struct {
	Action ActionDescriptor
	Args   []Argument
}

// Recipe is an ordered, parameter-threaded sequence of calls.
type Recipe struct {
	Name  string
	Calls []Call
}

// Payload is the encoded form of a recipe.
type Payload []byte

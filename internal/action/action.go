// Package action holds the lookup table that maps action descriptor ids to
// their handlers. Adding an action is a registration, never a change to dispatch.
package action

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"credit-automation/internal/domain"
	"credit-automation/internal/ledger"
)

var (
	ErrDuplicateAction = errors.New("action already registered")
	ErrUnknownAction   = errors.New("unknown action")
	ErrBadArguments    = errors.New("bad action arguments")
)

// Env is what a handler sees while a recipe runs.
type Env struct {
	Tx    *ledger.Tx
	Owner common.Address // position the recipe acts for
}

// Handler performs one action. It returns a value of the descriptor's
// declared return type, or the zero Value when the action returns nothing.
type Handler interface {
	Run(env Env, args []domain.Value) (domain.Value, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(env Env, args []domain.Value) (domain.Value, error)

// Run calls f.
func (f HandlerFunc) Run(env Env, args []domain.Value) (domain.Value, error) {
	return f(env, args)
}

type entry struct {
	desc    domain.ActionDescriptor
	handler Handler
}

// Registry is the action lookup table. Entries are never removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ActionID]entry
	byName  map[string]domain.ActionID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.ActionID]entry),
		byName:  make(map[string]domain.ActionID),
	}
}

// Register adds a descriptor and its handler.
func (r *Registry) Register(desc domain.ActionDescriptor, h Handler) error {
	if desc.Name == "" || desc.ID != domain.ActionIDFor(desc.Name) {
		return fmt.Errorf("register %q: malformed descriptor", desc.Name)
	}
	for _, in := range desc.Inputs {
		if !in.Type.Valid() {
			return fmt.Errorf("register %q: input %s has invalid type %q", desc.Name, in.Name, in.Type)
		}
	}
	if desc.Returns != domain.ParamNone && !desc.Returns.Valid() {
		return fmt.Errorf("register %q: invalid return type %q", desc.Name, desc.Returns)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[desc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, desc.Name)
	}
	r.entries[desc.ID] = entry{desc: desc, handler: h}
	r.byName[desc.Name] = desc.ID
	return nil
}

// Descriptor returns the descriptor registered under id.
func (r *Registry) Descriptor(id domain.ActionID) (domain.ActionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.desc, ok
}

// ByName returns the descriptor registered under name.
func (r *Registry) ByName(name string) (domain.ActionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return domain.ActionDescriptor{}, false
	}
	return r.entries[id].desc, true
}

// Names returns registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for id after checking argument types against the
// descriptor and the result against its declared return type.
func (r *Registry) Dispatch(env Env, id domain.ActionID, args []domain.Value) (domain.Value, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Value{}, fmt.Errorf("%w: %s", ErrUnknownAction, id.Hex())
	}

	if len(args) != len(e.desc.Inputs) {
		return domain.Value{}, fmt.Errorf("%w: %s: got %d, want %d", ErrBadArguments, e.desc.Name, len(args), len(e.desc.Inputs))
	}
	for i, in := range e.desc.Inputs {
		if args[i].Type != in.Type {
			return domain.Value{}, fmt.Errorf("%w: %s: %s is %q, want %q", ErrBadArguments, e.desc.Name, in.Name, args[i].Type, in.Type)
		}
	}

	out, err := e.handler.Run(env, args)
	if err != nil {
		return domain.Value{}, fmt.Errorf("%s: %w", e.desc.Name, err)
	}
	if out.Type != e.desc.Returns {
		return domain.Value{}, fmt.Errorf("%s: returned %q, want %q", e.desc.Name, out.Type, e.desc.Returns)
	}
	return out, nil
}

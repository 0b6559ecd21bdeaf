package domain

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

// FlashLoanAction names the action that opens an in-transaction flash loan.
// A strategy declares UsesFlashLoan exactly when its recipe calls it.
const FlashLoanAction = "FlashLoan"

// ActionID identifies an action descriptor. It is keccak256 of the action name.
type ActionID [32]byte

// Hex returns the 0x-prefixed hex form of the id.
func (id ActionID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Param is one named, typed input of an action.
type Param struct {
	Name string
	Type ParamType
}

// ActionDescriptor is a named unit of work with a fixed input schema.
// Descriptors are immutable and never removed, so historical recipes stay decodable.
type ActionDescriptor struct {
	ID      ActionID
	Name    string
	Inputs  []Param
	Returns ParamType // ParamNone when the action produces no value
}

// NewActionDescriptor builds a descriptor whose ID is derived from name.
func NewActionDescriptor(name string, returns ParamType, inputs ...Param) ActionDescriptor {
	return ActionDescriptor{
		ID:      ActionIDFor(name),
		Name:    name,
		Inputs:  append([]Param(nil), inputs...),
		Returns: returns,
	}
}

// ActionIDFor computes the id of an action name.
func ActionIDFor(name string) ActionID {
	return ActionID(crypto.Keccak256Hash([]byte(name)))
}

package idhash

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputePayloadDigest returns the keccak256 digest of an encoded recipe,
// 0x-prefixed (66 characters). Identical recipes share a digest.
func ComputePayloadDigest(payload []byte) string {
	return crypto.Keccak256Hash(payload).Hex()
}

package idhash

import (
	"strings"
	"testing"
)

func TestComputeExecutionID(t *testing.T) {
	tests := []struct {
		name           string
		subscriptionID int64
		strategyIndex  int
		strategyID     int64
		executedAt     int64
		attempt        uint64
	}{
		{name: "first attempt", subscriptionID: 0, strategyIndex: 0, strategyID: 0, executedAt: 1700000000000, attempt: 1},
		{name: "fallback index", subscriptionID: 3, strategyIndex: 1, strategyID: 7, executedAt: 1700000000000, attempt: 2},
		{name: "unresolved strategy", subscriptionID: 42, strategyIndex: 5, strategyID: -1, executedAt: 0, attempt: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeExecutionID(tt.subscriptionID, tt.strategyIndex, tt.strategyID, tt.executedAt, tt.attempt)
			if len(got) != 64 {
				t.Errorf("ComputeExecutionID() len = %d, want 64", len(got))
			}
			for _, c := range got {
				if !strings.ContainsRune("0123456789abcdef", c) {
					t.Errorf("ComputeExecutionID() contains non-hex char: %c", c)
				}
			}
		})
	}
}

func TestComputeExecutionID_Determinism(t *testing.T) {
	results := make([]string, 100)
	for i := range results {
		results[i] = ComputeExecutionID(5, 1, 9, 1700000000123, 77)
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}
}

func TestComputeExecutionID_DifferentInputs(t *testing.T) {
	base := ComputeExecutionID(1, 0, 2, 1000, 1)

	if base == ComputeExecutionID(2, 0, 2, 1000, 1) {
		t.Error("Different subscription should produce different hash")
	}
	if base == ComputeExecutionID(1, 1, 2, 1000, 1) {
		t.Error("Different strategy index should produce different hash")
	}
	if base == ComputeExecutionID(1, 0, 2, 1000, 2) {
		t.Error("Different attempt should produce different hash")
	}
	// "1|0|2|1000|1" must not collide with "10|2|1000|1|..." style shifts
	if base == ComputeExecutionID(10, 2, 1000, 1, 0) {
		t.Error("Shifted fields should produce different hash")
	}
}

func TestComputePayloadDigest(t *testing.T) {
	// keccak256 of the empty input
	const emptyDigest = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

	if got := ComputePayloadDigest(nil); got != emptyDigest {
		t.Errorf("ComputePayloadDigest(nil) = %s, want %s", got, emptyDigest)
	}

	a := ComputePayloadDigest([]byte("RCP1 recipe"))
	b := ComputePayloadDigest([]byte("RCP1 recipe"))
	if a != b {
		t.Errorf("Determinism failed: %s != %s", a, b)
	}
	if len(a) != 66 {
		t.Errorf("ComputePayloadDigest() len = %d, want 66", len(a))
	}
	if a == ComputePayloadDigest([]byte("RCP1 recipf")) {
		t.Error("Different payload should produce different digest")
	}
}

package fingerprint

import (
	"regexp"
	"testing"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute([]string{"print(1)", "x = 2"})
	b := Compute([]string{"print(1)", "x = 2"})
	if a != b {
		t.Errorf("same input produced different digests: %q vs %q", a, b)
	}
}

func TestCompute_HexLength(t *testing.T) {
	d := Compute([]string{"print(1)"})
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(d) {
		t.Errorf("digest %q is not 32 hex chars", d)
	}
}

func TestCompute_ContentSensitive(t *testing.T) {
	a := Compute([]string{"print(1)"})
	b := Compute([]string{"print(2)"})
	if a == b {
		t.Error("different contents produced identical digests")
	}
}

func TestCompute_OrderSensitive(t *testing.T) {
	a := Compute([]string{"one", "two"})
	b := Compute([]string{"two", "one"})
	if a == b {
		t.Error("reordered contents produced identical digests")
	}
}

func TestCompute_BoundarySensitive(t *testing.T) {
	// ["ab", "c"] and ["a", "bc"] concatenate identically; the digest must
	// still tell them apart.
	a := Compute([]string{"ab", "c"})
	b := Compute([]string{"a", "bc"})
	if a == b {
		t.Error("chunk boundaries not reflected in digest")
	}
}

func TestCompute_EmptyAndNil(t *testing.T) {
	if Compute(nil) != Compute([]string{}) {
		t.Error("nil and empty sequences should fingerprint the same")
	}
	if Compute(nil) == Compute([]string{""}) {
		t.Error("empty sequence and single empty chunk should differ")
	}
}

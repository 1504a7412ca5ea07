package protocol

import "testing"

// TestComputeHashGoldenVector uses a synthetic (email, password, hash)
// triple, not a captured vendor account — no real account was
// available in this environment. It pins ComputeHash to the
// base64(SHA-256(lower(email)+password)) algorithm spec.md prescribes
// until a real vendor vector can replace it.
func TestComputeHashGoldenVector(t *testing.T) {
	const (
		email    = "driver@example.com"
		password = "hunter2"
		want     = "Iz0PfD/cqNahDN1wfAm49+xP1omtw0YFaRk1D3dm5Sc="
	)

	if got := ComputeHash(email, password); got != want {
		t.Errorf("ComputeHash(%q, %q) = %q, want %q", email, password, got, want)
	}
}

func TestComputeHashIsCaseInsensitiveOnEmail(t *testing.T) {
	lower := ComputeHash("driver@example.com", "hunter2")
	upper := ComputeHash("DRIVER@EXAMPLE.COM", "hunter2")
	if lower != upper {
		t.Errorf("ComputeHash differs by email case: %q vs %q", lower, upper)
	}
}

func TestComputeHashIsCaseSensitiveOnPassword(t *testing.T) {
	a := ComputeHash("driver@example.com", "hunter2")
	b := ComputeHash("driver@example.com", "Hunter2")
	if a == b {
		t.Error("ComputeHash did not vary with password case, want different hashes")
	}
}

func TestComputeHashDiffersByPassword(t *testing.T) {
	a := ComputeHash("driver@example.com", "hunter2")
	b := ComputeHash("driver@example.com", "hunter3")
	if a == b {
		t.Error("ComputeHash produced identical hash for different passwords")
	}
}

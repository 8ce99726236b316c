package fingerprint

import "testing"

func TestComputeOrderIndependent(t *testing.T) {
	t.Parallel()

	first := map[string]string{"host": "db-1", "service": "postgres", "check": "disk"}
	second := map[string]string{"check": "disk", "service": "postgres", "host": "db-1"}

	if Compute(first) != Compute(second) {
		t.Fatalf("expected identical fingerprints for identical label sets")
	}
}

func TestComputeDistinguishesValues(t *testing.T) {
	t.Parallel()

	base := map[string]string{"host": "db-1", "check": "disk"}
	changedValue := map[string]string{"host": "db-2", "check": "disk"}
	changedKey := map[string]string{"node": "db-1", "check": "disk"}

	if Compute(base) == Compute(changedValue) {
		t.Fatalf("expected different fingerprint for different value")
	}
	if Compute(base) == Compute(changedKey) {
		t.Fatalf("expected different fingerprint for different key")
	}
}

func TestComputeSubsetDiffers(t *testing.T) {
	t.Parallel()

	full := map[string]string{"host": "db-1", "check": "disk"}
	subset := map[string]string{"host": "db-1"}
	if Compute(full) == Compute(subset) {
		t.Fatalf("expected different fingerprint for different label count")
	}
}

func TestComputeEmptyLabels(t *testing.T) {
	t.Parallel()

	if Compute(nil) != Compute(map[string]string{}) {
		t.Fatalf("expected stable fingerprint for empty label sets")
	}
}

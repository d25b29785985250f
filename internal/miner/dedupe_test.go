package miner

import (
	"reflect"
	"testing"

	"github.com/hashfleet/hashfleet/pkg/models"
)

func rawWithIP(ip, marker string) models.RawTelemetry {
	return models.RawTelemetry{"ip": ip, "marker": marker}
}

func TestDedupe_LastOccurrenceWins(t *testing.T) {
	in := []models.RawTelemetry{
		rawWithIP("10.0.0.1", "old"),
		rawWithIP("10.0.0.2", "keep"),
		rawWithIP("10.0.0.1", "new"),
	}

	out := Dedupe(in)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0]["marker"] != "keep" || out[1]["marker"] != "new" {
		t.Errorf("survivors = %v %v, want later duplicate to win", out[0], out[1])
	}
}

func TestDedupe_NoIPEntriesNeverMerged(t *testing.T) {
	in := []models.RawTelemetry{
		rawWithIP("", "a"),
		rawWithIP("  ", "b"), // whitespace-only IP has no identity either
		rawWithIP("10.0.0.1", "c"),
	}

	out := Dedupe(in)

	if len(out) != 3 {
		t.Errorf("len = %d, want all 3 kept", len(out))
	}
}

func TestDedupe_TrimmedIPIdentity(t *testing.T) {
	in := []models.RawTelemetry{
		rawWithIP(" 10.0.0.1 ", "padded"),
		rawWithIP("10.0.0.1", "exact"),
	}

	out := Dedupe(in)

	if len(out) != 1 || out[0]["marker"] != "exact" {
		t.Errorf("out = %v, want single trimmed-identity survivor", out)
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []models.RawTelemetry{
		rawWithIP("10.0.0.1", "a"),
		rawWithIP("10.0.0.2", "b"),
		rawWithIP("10.0.0.1", "c"),
		rawWithIP("", "d"),
	}

	once := Dedupe(in)
	twice := Dedupe(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("dedupe not idempotent: %v vs %v", once, twice)
	}

	seen := map[string]bool{}
	for _, r := range once {
		ip := r["ip"].(string)
		if ip == "" {
			continue
		}
		if seen[ip] {
			t.Errorf("duplicate identity %q in output", ip)
		}
		seen[ip] = true
	}
}

func TestDedupe_SmallInputsUntouched(t *testing.T) {
	if out := Dedupe(nil); len(out) != 0 {
		t.Errorf("nil input: got %v", out)
	}
	one := []models.RawTelemetry{rawWithIP("10.0.0.1", "a")}
	if out := Dedupe(one); len(out) != 1 {
		t.Errorf("single input: got %v", out)
	}
}

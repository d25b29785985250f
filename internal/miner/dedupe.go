package miner

import (
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// Dedupe collapses a raw telemetry batch to one record per IP identity.
// Collectors append newest records last, so the batch is scanned in reverse
// and the first record seen per identity -- the last occurrence in original
// order -- wins. Records with no IP have no identity and are each kept.
// Survivors keep their original relative order. O(n) time and space.
func Dedupe(raws []models.RawTelemetry) []models.RawTelemetry {
	if len(raws) <= 1 {
		return raws
	}

	seen := make(map[string]struct{}, len(raws))
	keep := make([]bool, len(raws))
	kept := 0

	for i := len(raws) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(rawString(raws[i], "ip"))
		if ip == "" {
			keep[i] = true
			kept++
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		keep[i] = true
		kept++
	}

	out := make([]models.RawTelemetry, 0, kept)
	for i, raw := range raws {
		if keep[i] {
			out = append(out, raw)
		}
	}
	return out
}

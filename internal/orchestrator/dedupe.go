package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DedupeServers removes duplicate server records by their normalized
// (host, port, database_name) key, keeping the first occurrence. Records
// where all three components are empty are dropped: an all-blank record
// identifies nothing.
func DedupeServers(records []map[string]any) []map[string]any {
	if len(records) == 0 {
		return []map[string]any{}
	}

	seen := make(map[string]bool)
	out := make([]map[string]any, 0, len(records))

	for _, rec := range records {
		if rec == nil {
			continue
		}
		host := strings.ToLower(strings.TrimSpace(stringField(rec, "host")))
		port := strings.TrimSpace(stringField(rec, "port"))
		db := strings.ToLower(strings.TrimSpace(stringField(rec, "database_name")))

		if host == "" && port == "" && db == "" {
			continue
		}
		key := host + ":" + port + ":" + db
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// DedupeRecords removes structurally equal records. Records with nested
// containers cannot be compared as flat tuples, so equality is defined by
// the canonical JSON encoding (json.Marshal sorts map keys). First
// occurrence wins.
func DedupeRecords(records []map[string]any) []map[string]any {
	if len(records) == 0 {
		return []map[string]any{}
	}

	seen := make(map[string]bool)
	out := make([]map[string]any, 0, len(records))

	for _, rec := range records {
		if rec == nil {
			continue
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			// Unencodable records cannot be compared; keep them.
			out = append(out, rec)
			continue
		}
		key := string(encoded)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// stringField reads a record field as a string. LLM output sometimes
// encodes ports as numbers, so non-string scalars are stringified.
func stringField(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ports are integral.
		return strings.TrimSuffix(fmt.Sprintf("%v", t), ".0")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// uniqueOrdered removes duplicate strings preserving first-seen order.
func uniqueOrdered(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

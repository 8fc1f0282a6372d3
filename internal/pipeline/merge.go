// Package pipeline runs the extraction and validation stages over archives
// and candidate files, writing per-archive artifacts.
package pipeline

import "github.com/sells-group/postalcrawl/internal/model"

// UnmatchedPolicy decides whether candidates without a resolution are kept.
type UnmatchedPolicy int

const (
	// KeepUnmatched emits every candidate, resolved or not.
	KeepUnmatched UnmatchedPolicy = iota
	// DropUnmatched emits only candidates the provider resolved.
	DropUnmatched
)

// PolicyFor maps a keep-unmatched flag to a policy.
func PolicyFor(keepUnmatched bool) UnmatchedPolicy {
	if keepUnmatched {
		return KeepUnmatched
	}
	return DropUnmatched
}

func (p UnmatchedPolicy) String() string {
	if p == DropUnmatched {
		return "drop_unmatched"
	}
	return "keep_unmatched"
}

// Keep reports whether r survives the policy.
func (p UnmatchedPolicy) Keep(r model.ValidationResult) bool {
	return p == KeepUnmatched || r.Matched()
}

// Merge flattens validation results into output records in the order given.
// Each record carries its own candidate, so arrival order does not matter.
func Merge(results []model.ValidationResult, policy UnmatchedPolicy) []model.Record {
	out := make([]model.Record, 0, len(results))
	for _, r := range results {
		if policy.Keep(r) {
			out = append(out, model.NewRecord(r))
		}
	}
	return out
}

package injector

import (
	"sort"

	"github.com/YunHsiao/crysknife/pkg/conflict"
)

// Outcome is the per-file result of one requested action.
type Outcome int

const (
	// OutcomeUpToDate means the idempotence check short-circuited:
	// nothing to do, nothing reported.
	OutcomeUpToDate Outcome = iota
	OutcomeGenerated
	OutcomeApplied
	OutcomeCleared
	OutcomePlaced
	OutcomeRemoved
	OutcomeSkipped
	OutcomeConflict
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeApplied:
		return "applied"
	case OutcomeCleared:
		return "cleared"
	case OutcomePlaced:
		return "placed"
	case OutcomeRemoved:
		return "removed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailed:
		return "failed"
	default:
		return "up-to-date"
	}
}

// Result is one file's outcome. Err is set for OutcomeFailed;
// Conflict carries the structured diff data for OutcomeConflict.
type Result struct {
	Target   string
	Outcome  Outcome
	Err      error
	Conflict *conflict.Report
}

// Report aggregates per-file results for one run. Failures are
// isolated per file; the report decides the overall exit status.
type Report struct {
	Results []Result
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// Sort orders results by target path for reproducible output.
func (r *Report) Sort() {
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Target < r.Results[j].Target
	})
}

// Failed reports whether any file failed or left an unmatched patch.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed || res.Outcome == OutcomeConflict {
			return true
		}
	}
	return false
}

// Changed reports whether the run did any observable work. A fully
// up-to-date run reports nothing at all.
func (r *Report) Changed() bool {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeUpToDate, OutcomeSkipped:
		default:
			return true
		}
	}
	return false
}

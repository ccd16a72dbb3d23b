package injector

import (
	"github.com/YunHsiao/crysknife/pkg/conflict"
	"github.com/YunHsiao/crysknife/pkg/errors"
	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/match"
)

// generateFile derives records from the live guarded file and appends
// any new versions to the store.
func (in *Injector) generateFile(target, mapped string) Result {
	text, err := in.readTarget(target, mapped)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}

	added, err := in.generator.Generate(target, text)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	if added == 0 {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}
	return Result{Target: target, Outcome: OutcomeGenerated}
}

// applyFile injects the best-matching record versions into the
// target. The file is first normalized to its cleared form, so apply
// is idempotent and upgrades stale guard content in one pass. The
// rebuilt text is written with a single write: all segments land or
// none do.
func (in *Injector) applyFile(target, mapped string) Result {
	text, err := in.readTarget(target, mapped)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	lines, trailing := guard.SplitLines(text)

	cleared, _, err := guard.Clear(in.parser, lines)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}

	set, err := in.store.Load(target)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	if len(set.Records) == 0 {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}

	selected, nearMiss := in.matcher.SelectSites(cleared, set)
	if len(selected) == 0 {
		newest := set.NewestFirst()[0]
		report := conflict.Build(target, cleared, newest, nearMiss)
		return Result{
			Target:   target,
			Outcome:  OutcomeConflict,
			Err:      errors.Newf(errors.ErrNoMatchFound, "no anchor position for %s cleared the match tolerance", target),
			Conflict: report,
		}
	}

	rebuilt := rebuild(in.parser.Tag(), cleared, selected)
	out := guard.JoinLines(rebuilt, trailing)
	if out == text {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}

	if err := in.fs.WriteFile(in.destPath(mapped), []byte(out), 0644); err != nil {
		return Result{
			Target:  target,
			Outcome: OutcomeFailed,
			Err:     errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", mapped),
		}
	}
	return Result{Target: target, Outcome: OutcomeApplied}
}

// clearFile removes every guard segment, restoring deletion stock.
// Guards are self-delimiting once present, so no fuzzy matching is
// involved.
func (in *Injector) clearFile(target, mapped string) Result {
	text, err := in.readTarget(target, mapped)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	lines, trailing := guard.SplitLines(text)

	cleared, changed, err := guard.Clear(in.parser, lines)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	if !changed {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}

	out := guard.JoinLines(cleared, trailing)
	if err := in.fs.WriteFile(in.destPath(mapped), []byte(out), 0644); err != nil {
		return Result{
			Target:  target,
			Outcome: OutcomeFailed,
			Err:     errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", mapped),
		}
	}
	return Result{Target: target, Outcome: OutcomeCleared}
}

// statusFile reports what apply would do, without writing.
func (in *Injector) statusFile(target, mapped string) Result {
	text, err := in.readTarget(target, mapped)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	lines, trailing := guard.SplitLines(text)

	cleared, _, err := guard.Clear(in.parser, lines)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}

	set, err := in.store.Load(target)
	if err != nil {
		return Result{Target: target, Outcome: OutcomeFailed, Err: err}
	}
	if len(set.Records) == 0 {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}

	selected, nearMiss := in.matcher.SelectSites(cleared, set)
	if len(selected) == 0 {
		newest := set.NewestFirst()[0]
		return Result{
			Target:   target,
			Outcome:  OutcomeConflict,
			Conflict: conflict.Build(target, cleared, newest, nearMiss),
		}
	}

	rebuilt := rebuild(in.parser.Tag(), cleared, selected)
	if guard.JoinLines(rebuilt, trailing) == text {
		return Result{Target: target, Outcome: OutcomeUpToDate}
	}
	return Result{Target: target, Outcome: OutcomeApplied}
}

// readTarget loads the mapped target file from the engine tree.
func (in *Injector) readTarget(target, mapped string) (string, error) {
	data, err := in.fs.ReadFile(in.destPath(mapped))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to read target %s", mapped)
	}
	return string(data), nil
}

// rebuild injects the selected candidates into the cleared buffer.
// Candidates arrive sorted by position; processing bottom-up keeps
// earlier positions stable.
func rebuild(tag string, cleared []string, selected []match.Candidate) []string {
	out := append([]string(nil), cleared...)
	for i := len(selected) - 1; i >= 0; i-- {
		cand := selected[i]
		rendered := guard.Render(tag, cand.Record.Segment())
		if cand.Record.Kind == guard.Deletion {
			// Replace the live stock block with its guarded form.
			tail := append([]string(nil), out[cand.Position+len(cand.Record.Stock):]...)
			out = append(out[:cand.Position], append(rendered, tail...)...)
		} else {
			tail := append([]string(nil), out[cand.Position:]...)
			out = append(out[:cand.Position], append(rendered, tail...)...)
		}
	}
	return out
}

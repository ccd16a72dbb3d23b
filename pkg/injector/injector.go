// Package injector drives the per-file pipeline: rule evaluation,
// patch generation, fuzzy matching, reversible application and
// clearing. Files are independent of each other, so they are
// processed by a bounded worker pool; one file's failure never
// cancels the rest.
package injector

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/logging"
	"github.com/YunHsiao/crysknife/pkg/match"
	"github.com/YunHsiao/crysknife/pkg/patch"
	"github.com/YunHsiao/crysknife/pkg/rules"
	"github.com/YunHsiao/crysknife/pkg/settings"
	"github.com/YunHsiao/crysknife/pkg/types"
)

// Action is one of the verbs the CLI dispatches to the core.
type Action int

const (
	ActionGenerate Action = iota
	ActionApply
	ActionClear
	ActionStatus
	ActionRegister
	ActionUnregister
)

func (a Action) String() string {
	switch a {
	case ActionGenerate:
		return "generate"
	case ActionApply:
		return "apply"
	case ActionClear:
		return "clear"
	case ActionStatus:
		return "status"
	case ActionRegister:
		return "register"
	default:
		return "unregister"
	}
}

// patchDirName is the plugin subdirectory holding patch artifacts and
// standalone source files, mirroring the engine tree's structure.
const patchDirName = "SourcePatch"

// Injector wires the pipeline together around an immutable settings
// handle and rule engine.
type Injector struct {
	fs        types.FS
	set       *settings.Settings
	engine    *rules.Engine
	store     *patch.Store
	parser    *guard.Parser
	matcher   *match.Matcher
	generator *patch.Generator
	logger    zerolog.Logger
}

// New builds an injector. The filesystem decides live vs dry-run vs
// in-memory routing; everything else flows from settings.
func New(fs types.FS, set *settings.Settings, engine *rules.Engine) *Injector {
	parser := guard.NewParser(set.Plugin)
	store := patch.NewStore(fs, filepath.Join(set.SourceRoot, patchDirName))
	return &Injector{
		fs:        fs,
		set:       set,
		engine:    engine,
		store:     store,
		parser:    parser,
		matcher:   match.NewMatcher(match.ExactLine, set.ContentTolerance, set.LineDrift()),
		generator: patch.NewGenerator(parser, store, set.PatchContext),
		logger:    logging.GetLogger("injector"),
	}
}

// Store exposes the patch store, mainly for tests and the CLI.
func (in *Injector) Store() *patch.Store {
	return in.store
}

// Run executes one action across every in-scope target. Scheduling
// stops on context cancellation; already-started files complete
// atomically per their all-or-nothing contract.
func (in *Injector) Run(ctx context.Context, action Action) (*Report, error) {
	targets, err := in.store.Targets()
	if err != nil {
		return nil, err
	}
	if action == ActionGenerate {
		targets = in.withIncludedTargets(targets)
	}

	report := &Report{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.set.Parallelism)

	for _, target := range targets {
		if ctx.Err() != nil {
			break // stop scheduling further files
		}
		if !in.inScope(target) {
			continue
		}

		decision, err := in.engine.Evaluate(target, in.facts(target))
		if err != nil {
			return nil, err
		}
		if decision.Skip {
			mu.Lock()
			report.add(Result{Target: target, Outcome: OutcomeSkipped})
			mu.Unlock()
			continue
		}

		target := target
		mapped := decision.Path
		g.Go(func() error {
			res := in.processOne(action, target, mapped)
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if action == ActionRegister || action == ActionUnregister {
		if err := in.place(ctx, action, report); err != nil {
			return nil, err
		}
	}

	report.Sort()
	return report, nil
}

// withIncludedTargets adds literal --include paths that exist in the
// engine tree but have no artifact yet, so generate can record a
// brand-new target. Glob patterns keep their filter-only meaning.
func (in *Injector) withIncludedTargets(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		seen[t] = true
	}
	for _, pattern := range in.set.Include {
		if strings.ContainsAny(pattern, "*?[") {
			continue
		}
		rel := strings.Trim(path.Clean(filepath.ToSlash(pattern)), "/")
		if rel == "" || rel == "." || seen[rel] {
			continue
		}
		if _, err := in.fs.Stat(in.destPath(rel)); err != nil {
			continue
		}
		targets = append(targets, rel)
		seen[rel] = true
	}
	sort.Strings(targets)
	return targets
}

// facts builds the fact set the rule engine evaluates against.
func (in *Injector) facts(target string) rules.Facts {
	return rules.Facts{
		FileName: path.Base(target),
		Defines:  in.set.Defines,
		TargetExists: func(rel string) bool {
			_, err := in.fs.Stat(filepath.Join(in.set.DestRoot, filepath.FromSlash(rel)))
			return err == nil
		},
	}
}

// inScope applies the CLI include/exclude path filters.
func (in *Injector) inScope(target string) bool {
	matchFilter := func(pattern string) bool {
		if ok, _ := path.Match(pattern, target); ok {
			return true
		}
		return strings.HasPrefix(target, strings.Trim(pattern, "/")+"/")
	}
	for _, pattern := range in.set.Exclude {
		if matchFilter(pattern) {
			return false
		}
	}
	if len(in.set.Include) == 0 {
		return true
	}
	for _, pattern := range in.set.Include {
		if matchFilter(pattern) {
			return true
		}
	}
	return false
}

// destPath resolves a mapped target path inside the engine tree.
func (in *Injector) destPath(mapped string) string {
	return filepath.Join(in.set.DestRoot, filepath.FromSlash(mapped))
}

// processOne runs the requested action against a single target file.
func (in *Injector) processOne(action Action, target, mapped string) Result {
	var res Result
	switch action {
	case ActionGenerate:
		res = in.generateFile(target, mapped)
	case ActionApply, ActionRegister:
		res = in.applyFile(target, mapped)
	case ActionClear, ActionUnregister:
		res = in.clearFile(target, mapped)
	case ActionStatus:
		res = in.statusFile(target, mapped)
	}

	event := in.logger.Debug()
	if res.Err != nil {
		event = in.logger.Error().Err(res.Err)
	}
	event.
		Str("action", action.String()).
		Str("target", target).
		Str("outcome", res.Outcome.String()).
		Msg("Processed file")
	return res
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YunHsiao/crysknife/pkg/filesystem"
	"github.com/YunHsiao/crysknife/pkg/injector"
	"github.com/YunHsiao/crysknife/pkg/logging"
	"github.com/YunHsiao/crysknife/pkg/output"
	"github.com/YunHsiao/crysknife/pkg/rules"
	"github.com/YunHsiao/crysknife/pkg/settings"
	"github.com/YunHsiao/crysknife/pkg/types"
)

// configFileName is the rule config looked up at the plugin source root.
const configFileName = "Crysknife.ini"

type options struct {
	plugin      string
	source      string
	destination string
	defines     []string
	include     []string
	exclude     []string
	link        bool
	force       bool
	dryRun      bool
	verbose     int

	patchContext     int
	contentTolerance float64
	lineTolerance    float64
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "crysknife",
		Short: "Inject and maintain plugin-owned modifications in an engine source tree",
		Long: `crysknife lets a plugin carry persistent, reapplicable modifications
to an engine codebase it does not own, surviving engine upgrades
through fuzzy patch matching and reversible guard injection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.plugin, "plugin", "p", "", "plugin tag used in guard comments (required)")
	pf.StringVarP(&opts.source, "source", "s", "", "plugin source root holding SourcePatch/ (required)")
	pf.StringVarP(&opts.destination, "destination", "d", "", "engine source root (required)")
	pf.StringArrayVarP(&opts.defines, "define", "D", nil, "variable define NAME[=VALUE] for rule evaluation")
	pf.StringArrayVarP(&opts.include, "include", "i", nil, "only process targets matching these path filters")
	pf.StringArrayVarP(&opts.exclude, "exclude", "e", nil, "skip targets matching these path filters")
	pf.BoolVar(&opts.link, "link", false, "symlink standalone files instead of copying")
	pf.BoolVarP(&opts.force, "force", "f", false, "overwrite existing placements")
	pf.BoolVarP(&opts.dryRun, "dry-run", "n", false, "route all writes through a sandbox, mutate nothing")
	pf.CountVarP(&opts.verbose, "verbose", "v", "increase logging verbosity")
	pf.IntVar(&opts.patchContext, "patch-context", 50, "max context lines recorded around each segment")
	pf.Float64Var(&opts.contentTolerance, "content-tolerance", 0.5, "max fraction of context lines allowed to mismatch")
	pf.Float64Var(&opts.lineTolerance, "line-tolerance", 0, "max positional drift in lines, 0 for unbounded")

	root.AddCommand(
		newActionCommand(opts, "register", "Place standalone files and apply all patches", injector.ActionRegister),
		newActionCommand(opts, "unregister", "Clear all patches and remove placed files", injector.ActionUnregister),
		newActionCommand(opts, "generate", "Derive patch records from live guarded files", injector.ActionGenerate),
		newActionCommand(opts, "apply", "Inject stored patches into the engine tree", injector.ActionApply),
		newActionCommand(opts, "clear", "Remove all guard segments, restoring stock code", injector.ActionClear),
		newActionCommand(opts, "status", "Report per-file patch state without writing", injector.ActionStatus),
	)
	return root
}

func newActionCommand(opts *options, use, short string, action injector.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, action)
		},
	}
}

func runAction(opts *options, action injector.Action) error {
	logging.SetupLogger(opts.verbose)
	logger := logging.GetLogger("cli")
	defer logging.LogDuration(time.Now(), action.String())

	set, err := settings.Load(map[string]interface{}{
		"plugin":            opts.plugin,
		"source":            opts.source,
		"destination":       opts.destination,
		"patch-context":     opts.patchContext,
		"content-tolerance": opts.contentTolerance,
		"line-tolerance":    opts.lineTolerance,
		"dry-run":           opts.dryRun,
		"force":             opts.force,
		"link":              opts.link,
		"verbose":           opts.verbose,
		"include":           opts.include,
		"exclude":           opts.exclude,
		"defines":           parseDefines(opts.defines),
	})
	if err != nil {
		return err
	}
	if set.Plugin == "" || set.SourceRoot == "" || set.DestRoot == "" {
		return fmt.Errorf("--plugin, --source and --destination are required")
	}

	var fs types.FS
	if set.DryRun {
		fs = filesystem.NewDryRun()
	} else {
		fs = filesystem.NewOS()
	}

	engine, err := loadRules(fs, set)
	if err != nil {
		// Config errors are fatal: rules are a precondition for all
		// file processing.
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := injector.New(fs, set, engine).Run(ctx, action)
	if err != nil {
		return err
	}

	failures := 0
	for _, res := range report.Results {
		switch res.Outcome {
		case injector.OutcomeFailed:
			failures++
			logger.Error().Err(res.Err).Str("file", res.Target).Msg("Action failed")
		case injector.OutcomeConflict:
			failures++
			logger.Error().
				Str("file", res.Target).
				Bool("nearMiss", res.Conflict != nil && res.Conflict.HasNearMiss).
				Msg("No matching position for stored patch")
			output.RenderConflict(os.Stderr, res.Conflict)
		case injector.OutcomeUpToDate, injector.OutcomeSkipped:
			// A fully up-to-date run stays silent.
		default:
			logger.Info().Str("file", res.Target).Str("outcome", res.Outcome.String()).Msg("Done")
		}
	}

	if failures > 0 {
		return fmt.Errorf("%s finished with %d failing file(s)", action, failures)
	}
	return nil
}

func loadRules(fs types.FS, set *settings.Settings) (*rules.Engine, error) {
	configText := ""
	data, err := fs.ReadFile(filepath.Join(set.SourceRoot, configFileName))
	if err == nil {
		configText = string(data)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return rules.NewEngine(configText, set.Defines)
}

// parseDefines turns NAME or NAME=VALUE flags into the defines map;
// a bare NAME is truthy.
func parseDefines(defines []string) map[string]string {
	out := make(map[string]string, len(defines))
	for _, d := range defines {
		if eq := strings.Index(d, "="); eq >= 0 {
			out[d[:eq]] = d[eq+1:]
		} else {
			out[d] = "1"
		}
	}
	return out
}

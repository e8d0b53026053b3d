package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capnpdiff/internal/change"
	"capnpdiff/internal/difffmt"
	"capnpdiff/internal/driver"
	"capnpdiff/internal/observ"
	"capnpdiff/internal/project"
)

var diffCmd = &cobra.Command{
	Use:   "diff [flags] [schema.capnp...]",
	Short: "Diff two versions of a schema",
	Long: `Diff two versions of a Cap'n Proto schema.

Two ways to name the sides:

  revision mode (positional files, compiled at two git revisions):
      capnp-diff diff --old-rev HEAD~1 schemas/person.capnp
  file mode (two explicit file sets):
      capnp-diff diff --old v1/person.capnp --new v2/person.capnp

Without positional files the schema list comes from capnp-diff.toml.`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().String("old-rev", "", "git revision for the old side")
	diffCmd.Flags().String("new-rev", "", "git revision for the new side (default: working tree)")
	diffCmd.Flags().StringArray("old", nil, "old-side schema file (repeatable)")
	diffCmd.Flags().StringArray("new", nil, "new-side schema file (repeatable)")
	diffCmd.Flags().StringArrayP("import-path", "I", nil, "schema import path (repeatable)")
	diffCmd.Flags().String("compiler", "", "path to the capnp binary")
	diffCmd.Flags().Bool("no-standard-import", false, "do not search the standard import paths")
	diffCmd.Flags().String("format", "", "output format (pretty|json|binary)")
	diffCmd.Flags().Int("context", 0, "context lines around snippets")
	diffCmd.Flags().Bool("snippets", true, "show source snippets in pretty and json output")
	diffCmd.Flags().Bool("positions", true, "include line/col positions in json output")
	diffCmd.Flags().Bool("no-cache", false, "bypass the compiled-schema disk cache")
	diffCmd.Flags().Bool("ui", false, "browse changes interactively")
	diffCmd.Flags().String("fail-on", "wire", "minimum breakage that fails the run (wire|code|any|never)")
}

// diffConfig is the fully resolved run configuration: flags override the
// manifest, the manifest overrides defaults.
type diffConfig struct {
	oldIn, newIn driver.Input
	opts         driver.Options
	format       string
	context      int
	snippets     bool
	positions    bool
	useUI        bool
	failOn       string
	color        bool
	quiet        bool
	timings      bool
	baseDir      string
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := resolveDiffConfig(cmd, args)
	if err != nil {
		return err
	}

	if cfg.useUI {
		return runDiffWithUI(cmd.Context(), cfg)
	}

	timer := observ.NewTimer()
	phase := timer.Begin("load+diff")
	d, err := driver.DiffInputs(cmd.Context(), &cfg.opts, cfg.oldIn, cfg.newIn)
	timer.End(phase, "")
	if err != nil {
		return err
	}

	phase = timer.Begin("render")
	err = renderDiff(cmd, cfg, d)
	timer.End(phase, cfg.format)
	if err != nil {
		return err
	}

	if cfg.timings {
		fmt.Fprint(os.Stderr, timer.Summary())
	}
	exitForBreakage(d, cfg.failOn)
	return nil
}

func renderDiff(cmd *cobra.Command, cfg *diffConfig, d *change.Diff) error {
	out := cmd.OutOrStdout()
	switch cfg.format {
	case "json":
		fs := driver.LoadSources(cmd.Context(), d, cfg.baseDir)
		return difffmt.JSON(out, d, fs, difffmt.JSONOpts{
			IncludePositions: cfg.positions,
			IncludeSnippets:  cfg.snippets,
		})
	case "binary":
		return difffmt.Binary(out, d, nil, difffmt.JSONOpts{})
	default:
		opts := difffmt.PrettyOpts{
			Color:        cfg.color,
			Context:      cfg.context,
			ShowSnippets: cfg.snippets && !cfg.quiet,
		}
		fs := driver.LoadSources(cmd.Context(), d, cfg.baseDir)
		return difffmt.Pretty(out, d, fs, opts)
	}
}

// exitForBreakage terminates the process with the CI gating code:
// 2 for wire breaks, 1 for code breaks under --fail-on code or any, 1 for
// any change under --fail-on any, 0 otherwise. --fail-on never always
// leaves the exit code at 0.
func exitForBreakage(d *change.Diff, failOn string) {
	if failOn == "never" {
		return
	}
	max := d.MaxBreakage()
	switch {
	case max >= change.BreakWire:
		os.Exit(2)
	case max >= change.BreakCode && (failOn == "code" || failOn == "any"):
		os.Exit(1)
	case len(d.Changes) > 0 && failOn == "any":
		os.Exit(1)
	}
}

func resolveDiffConfig(cmd *cobra.Command, args []string) (*diffConfig, error) {
	flags := cmd.Flags()
	cfg := &diffConfig{}

	manifest, manifestDir, err := project.LoadNearest(".")
	if err != nil {
		return nil, err
	}

	// --- inputs ---
	oldRev, _ := flags.GetString("old-rev")
	newRev, _ := flags.GetString("new-rev")
	oldFiles, _ := flags.GetStringArray("old")
	newFiles, _ := flags.GetStringArray("new")

	files := args
	if len(files) == 0 && manifest != nil {
		files = manifest.Schemas.Files
		cfg.baseDir = manifestDir
	}

	switch {
	case len(oldFiles) > 0 || len(newFiles) > 0:
		if oldRev != "" || newRev != "" {
			return nil, fmt.Errorf("--old/--new cannot be combined with revisions")
		}
		if len(oldFiles) == 0 || len(newFiles) == 0 {
			return nil, fmt.Errorf("file mode needs both --old and --new")
		}
		cfg.oldIn = driver.Input{Files: oldFiles}
		cfg.newIn = driver.Input{Files: newFiles}
	case oldRev != "":
		if len(files) == 0 {
			return nil, fmt.Errorf("revision mode needs schema files (arguments or manifest)")
		}
		cfg.oldIn = driver.Input{Dir: cfg.baseDir, Files: files, Revision: oldRev}
		cfg.newIn = driver.Input{Dir: cfg.baseDir, Files: files, Revision: newRev}
	default:
		return nil, fmt.Errorf("nothing to diff: pass --old-rev or --old/--new")
	}

	// --- compiler ---
	cfg.opts.Compiler.Path, _ = flags.GetString("compiler")
	cfg.opts.Compiler.ImportPaths, _ = flags.GetStringArray("import-path")
	cfg.opts.Compiler.NoStandardImport, _ = flags.GetBool("no-standard-import")
	cfg.opts.RepoDir = cfg.baseDir
	if manifest != nil {
		if cfg.opts.Compiler.Path == "" {
			cfg.opts.Compiler.Path = manifest.Schemas.Compiler
		}
		if len(cfg.opts.Compiler.ImportPaths) == 0 {
			cfg.opts.Compiler.ImportPaths = manifest.Schemas.ImportPaths
		}
		if !cfg.opts.Compiler.NoStandardImport {
			cfg.opts.Compiler.NoStandardImport = manifest.Schemas.NoStandardImport
		}
	}

	if noCache, _ := flags.GetBool("no-cache"); !noCache {
		cache, err := driver.OpenDiskCache("capnp-diff")
		if err == nil {
			cfg.opts.Cache = cache
		}
		// Недоступный кеш — не ошибка, просто работаем без него.
	}

	// --- output ---
	cfg.format, _ = flags.GetString("format")
	cfg.context, _ = flags.GetInt("context")
	cfg.snippets, _ = flags.GetBool("snippets")
	cfg.positions, _ = flags.GetBool("positions")
	cfg.useUI, _ = flags.GetBool("ui")
	cfg.failOn, _ = flags.GetString("fail-on")

	if manifest != nil {
		if cfg.format == "" {
			cfg.format = manifest.Output.Format
		}
		if !flags.Changed("context") && manifest.Output.Context > 0 {
			cfg.context = manifest.Output.Context
		}
	}
	if cfg.format == "" {
		cfg.format = "pretty"
	}
	switch cfg.format {
	case "pretty", "json", "binary":
	default:
		return nil, fmt.Errorf("unknown format %q (must be pretty, json, or binary)", cfg.format)
	}
	switch cfg.failOn {
	case "wire", "code", "any", "never":
	default:
		return nil, fmt.Errorf("unknown fail-on %q (must be wire, code, any, or never)", cfg.failOn)
	}

	colorMode, _ := cmd.Root().PersistentFlags().GetString("color")
	if manifest != nil && !cmd.Root().PersistentFlags().Changed("color") && manifest.Output.Color != "" {
		colorMode = manifest.Output.Color
	}
	cfg.color = resolveColor(colorMode)
	cfg.quiet, _ = cmd.Root().PersistentFlags().GetBool("quiet")
	cfg.timings, _ = cmd.Root().PersistentFlags().GetBool("timings")

	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashwch/cortana/internal/appdirs"
	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/logging"
	"github.com/ashwch/cortana/internal/session"
	"github.com/ashwch/cortana/internal/systemprofile"
	"github.com/ashwch/cortana/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

type options struct {
	Provider string
	Model    string
	Mode     string
	UI       string
	Save     bool
	Yes      bool
	DryRun   bool
	Verbose  bool
}

// app carries what every subcommand shares. stdin/stdout/stderr and
// terminal are swapped out in tests.
type app struct {
	opts     options
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	terminal bool

	cfg     config.Config
	cfgPath string
	logger  *zap.Logger

	// provider replaces the provider service when set.
	provider session.Completer
	// gather replaces the system profile scan when set.
	gather func() systemprofile.Profile
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], newApp(os.Stdin, os.Stdout, os.Stderr)))
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	in, inOK := stdin.(*os.File)
	out, outOK := stdout.(*os.File)
	a.terminal = inOK && outOK && ui.IsTerminal(in) && ui.IsTerminal(out)
	return a
}

func run(ctx context.Context, args []string, a *app) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	err := root.ExecuteContext(ctx)
	_ = a.logger.Sync()
	if err != nil {
		fmt.Fprintf(a.stderr, "cortana: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cortana",
		Short: "Turn plain-language requests into shell commands you approve and run",
		Long: `cortana asks an AI model for the shell command that does what you describe,
shows it to you, and runs it once you press enter. It remembers what it has
run, checks every command against your safety rules, and can split larger
tasks into plans you approve step by step.

Run it without arguments for an interactive session. Type 'exit' to quit.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.chat(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.Provider, "provider", "", "provider to try first for this run")
	flags.StringVar(&a.opts.Model, "model", "", "model or alias to use for this run")
	flags.StringVar(&a.opts.Mode, "mode", "", "confirm|suggest|yolo")
	flags.StringVar(&a.opts.UI, "ui", "", "confirmation backend: auto|bubbletea|huh|tview|plain")
	flags.BoolVar(&a.opts.Save, "save", false, "persist --provider/--model/--mode/--ui to the config file")
	flags.BoolVarP(&a.opts.Yes, "yes", "y", false, "approve commands without asking (dangerous ones are still refused)")
	flags.BoolVar(&a.opts.DryRun, "dry-run", false, "show commands without running them")
	flags.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAskCmd(a),
		newPlanCmd(a),
		newRulesCmd(a),
		newKBCmd(a),
		newJournalCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads the config, applies flag overrides and starts logging.
func (a *app) setup() error {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	changes := overrides(a.opts)
	for _, change := range changes {
		if err := cfg.Set(change[0], change[1]); err != nil {
			return fmt.Errorf("invalid %s: %w", change[0], err)
		}
	}
	if a.opts.Save && len(changes) > 0 {
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "Saved %d setting(s) to %s\n", len(changes), cfgPath)
	}
	a.cfg, a.cfgPath = cfg, cfgPath

	logFile := strings.TrimSpace(cfg.Log.File)
	if logFile == "" {
		if _, err := appdirs.EnsureStateDir(); err != nil {
			return err
		}
		if logFile, err = appdirs.LogFilePath(); err != nil {
			return err
		}
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: logFile, Verbose: a.opts.Verbose})
	if err != nil {
		return err
	}
	a.logger = logger.With(zap.String("version", version))
	return nil
}

// overrides turns flags into config changes, in a stable order.
func overrides(opts options) [][2]string {
	var changes [][2]string
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			changes = append(changes, [2]string{key, value})
		}
	}
	add("provider", opts.Provider)
	add("mode", opts.Mode)
	add("ui.backend", opts.UI)
	add("chat.model", opts.Model)
	add("plan.model", opts.Model)
	return changes
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintln(a.stdout, version)
			return nil
		},
	}
}

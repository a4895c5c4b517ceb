package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"launchpad/internal/confirm"
	"launchpad/internal/logging"
	"launchpad/internal/pipeline"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(ctx context.Context, args []string) error
}

// commands is populated in init because the run functions refer back to
// it (via printCommandHelp), which would otherwise be an initialization cycle.
var commands []command

func init() {
	commands = []command{
		{
			name:  "build",
			short: "Package a model deployment into a zip",
			usage: "launchpad build [flags] <config>",
			long: `Validate the deployment config, check the requirements, optionally
retrain the model, scan the requirements for vulnerabilities, download
wheels for the target platforms and write build/<api>_<version>.zip next
to the config file.

Flags:
  -y, --yes-to-all     answer yes to every question
  -f, --freeze         only freeze the requirements (same as "launchpad freeze")
      --strict         fail when a requirement has no wheel for any platform
      --python PATH    host interpreter used to create environments (default python3)
      --log-level LVL  debug, info, warn or error (default info)
      --log-json       log JSON lines and print warnings without styling
`,
			run: runBuild,
		},
		{
			name:  "freeze",
			short: "Pin the requirements of a deployment config",
			usage: "launchpad freeze [flags] <config>",
			long: `Install deploy:requirements:file into a clean environment and write the
resolved versions to <file>_frozen<ext>, annotated with which package
requires each entry. Offers to point the config at the frozen file; the
previous config is kept as <config>_before_freeze<ext>.

Flags:
  -y, --yes-to-all     answer yes to every question
      --python PATH    host interpreter used to create environments (default python3)
      --log-level LVL  debug, info, warn or error (default info)
      --log-json       log JSON lines
`,
			run: runFreeze,
		},
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "launchpad - package trained models for deployment\n\n")
	fmt.Fprintf(w, "Usage:\n  launchpad <command> [flags] <config>\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'launchpad help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "launchpad: unknown command %q\n\nRun 'launchpad help' for usage.\n", name)
}

func dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'launchpad help' for usage.", args[0])
}

// ---------------------------------------------------------------------------
// flags
// ---------------------------------------------------------------------------

type options struct {
	yes      bool
	freeze   bool
	strict   bool
	python   string
	logLevel string
	logJSON  bool
	config   string
}

// parseFlags parses the flags of command name and expects exactly one
// positional argument, the config path.
func parseFlags(name string, args []string) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVarP(&o.yes, "yes-to-all", "y", false, "answer yes to every question")
	if name == "build" {
		fs.BoolVarP(&o.freeze, "freeze", "f", false, "only freeze the requirements")
		fs.BoolVar(&o.strict, "strict", false, "fail when a requirement has no wheel")
	}
	fs.StringVar(&o.python, "python", pipeline.DefaultHostPython, "host interpreter")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	fs.BoolVar(&o.logJSON, "log-json", false, "log JSON lines")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w\n\nusage: launchpad %s [flags] <config>", err, name)
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: launchpad %s [flags] <config>", name)
	}
	o.config = fs.Arg(0)
	return o, nil
}

func (o *options) pipeline() (*pipeline.Pipeline, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{Level: level, JSON: o.logJSON})
	policy := confirm.Interactive
	if o.yes {
		policy = confirm.AlwaysYes
	}
	return pipeline.New(pipeline.Options{
		HostPython: o.python,
		Confirm:    confirm.New(policy, os.Stdin, os.Stdout),
		Out:        os.Stdout,
		Strict:     o.strict,
		Plain:      o.logJSON || !isatty.IsTerminal(os.Stdout.Fd()),
		Log:        log,
	}), nil
}

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

func runBuild(ctx context.Context, args []string) error {
	o, err := parseFlags("build", args)
	if errors.Is(err, pflag.ErrHelp) {
		printCommandHelp(os.Stdout, "build")
		return nil
	}
	if err != nil {
		return err
	}
	p, err := o.pipeline()
	if err != nil {
		return err
	}
	if o.freeze {
		return p.Freeze(ctx, o.config)
	}
	_, err = p.Run(ctx, o.config)
	return err
}

// ---------------------------------------------------------------------------
// freeze
// ---------------------------------------------------------------------------

func runFreeze(ctx context.Context, args []string) error {
	o, err := parseFlags("freeze", args)
	if errors.Is(err, pflag.ErrHelp) {
		printCommandHelp(os.Stdout, "freeze")
		return nil
	}
	if err != nil {
		return err
	}
	p, err := o.pipeline()
	if err != nil {
		return err
	}
	return p.Freeze(ctx, o.config)
}

// exitCode maps a dispatch result to the process status. An operator who
// chose not to continue is not a failure.
func exitCode(err error) int {
	if err == nil || errors.Is(err, confirm.ErrDeclined) {
		return 0
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := dispatch(ctx, os.Args[1:])
	stop()
	code := exitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "launchpad: %v\n", err)
	}
	os.Exit(code)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/catalog"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/config"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var (
	errUsage = errors.New("usage")
	// errInvalid marks a run whose output already explains the failure.
	errInvalid = errors.New("one or more tables are invalid")
)

type command struct {
	name    string
	args    string
	summary string
	run     func(e *env, args []string) error
}

var commands = []command{
	{"build", "<wordlist>", "build one table per hash method", runBuild},
	{"check", "<metadata>...", "validate tables for corruption", runCheck},
	{"lookup", "<metadata> <value>...", "test values (or hex digests) against a table", runLookup},
	{"stats", "<metadata>", "print table statistics", runStats},
	{"catalog", "", "list recorded builds and their last validation", runCatalog},
}

// env carries what every subcommand needs.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	logger zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet(internal.DefaultAppName, pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	configPath := global.StringP("config", "c", "", "config file (default searches ., .., etc/bloomhash, "+internal.DefaultConfigPath+")")
	logLevel := global.String("log-level", "", "override bloomhash.logLevel")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if global.NArg() == 0 {
		printUsage(stderr, global)
		return exitUsage
	}

	name := global.Arg(0)
	cmd, ok := findCommand(name)
	if !ok {
		fmt.Fprintf(stderr, "bloomhash: unknown command %q\n", name)
		printUsage(stderr, global)
		return exitUsage
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "bloomhash: %v\n", err)
		return exitFailed
	}
	if *logLevel != "" {
		cfg.Bloomhash.LogLevel = *logLevel
	}
	if err := internal.SetLogLevel(cfg.Bloomhash.LogLevel); err != nil {
		fmt.Fprintf(stderr, "bloomhash: log level: %v\n", err)
		return exitUsage
	}

	e := &env{
		ctx:    ctx,
		cfg:    cfg,
		logger: internal.GetLogger().Output(zerolog.ConsoleWriter{Out: stderr, NoColor: true}),
		stdout: stdout,
		stderr: stderr,
	}

	err = cmd.run(e, global.Args()[1:])
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "usage: bloomhash %s %s\n", cmd.name, cmd.args)
		return exitUsage
	case errors.Is(err, errInvalid):
		return exitFailed
	default:
		fmt.Fprintf(stderr, "bloomhash %s: %v\n", cmd.name, err)
		return exitFailed
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: bloomhash [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %-22s %s\n", c.name, c.args, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, global.FlagUsages())
}

// flags returns a subcommand flag set writing its errors to stderr.
func (e *env) flags(name, args string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "usage: bloomhash %s [flags] %s\n", name, args)
		fmt.Fprint(e.stderr, fs.FlagUsages())
	}
	return fs
}

// parse parses subcommand flags. Anything but a help request is a usage error.
func parse(fs *pflag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}

func (e *env) openCatalog() (*catalog.Catalog, error) {
	return catalog.Open(e.cfg.Bloomhash.Catalog.DSN, catalog.WithLogger(e.logger))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

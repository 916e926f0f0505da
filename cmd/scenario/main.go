// Command scenario plays Lua battle scripts against the unit catalog and
// reports which expectations failed.
//
// Usage:
//
//	scenario [flags] script.lua [script.lua ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/config"
	"github.com/pefman/w40k-combat/internal/logging"
	"github.com/pefman/w40k-combat/internal/scenario"
)

var errFailed = errors.New("scenario expectations failed")

type options struct {
	cfg     config.Config
	scripts []string
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	cfg, err := config.Parse()
	if err != nil {
		return options{}, err
	}
	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if err := cfg.ValidateSim(); err != nil {
		return options{}, err
	}
	if fs.NArg() == 0 {
		return options{}, errors.New("no scenario scripts given")
	}
	return options{cfg: cfg, scripts: fs.Args()}, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	log, err := logging.New(opts.cfg.LogLevel, opts.cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	cat, err := catalog.Open(opts.cfg.Catalog)
	if err != nil {
		return err
	}
	runner := scenario.Runner{
		Catalog:   cat,
		Logger:    log,
		Workers:   opts.cfg.Workers,
		MaxRounds: opts.cfg.MaxRounds,
	}

	failed := 0
	for _, path := range opts.scripts {
		sc, err := scenario.LoadFile(path)
		if err != nil {
			return err
		}
		outcomes, err := runner.Run(ctx, sc)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if o.Passed() {
				fmt.Fprintf(out, "ok    %s/%s%s\n", sc.Name, o.Battle.Name, detail(o))
				continue
			}
			failed++
			fmt.Fprintf(out, "FAIL  %s/%s%s\n", sc.Name, o.Battle.Name, detail(o))
			for _, f := range o.Failures {
				fmt.Fprintf(out, "      %s\n", f)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d battle(s)", errFailed, failed)
	}
	return nil
}

func detail(o scenario.Outcome) string {
	switch {
	case o.Summary != nil:
		return fmt.Sprintf(" (%d runs, attacker %.1f%%, defender %.1f%%, %.2f rounds)",
			o.Summary.Battles, o.Summary.AttackerWinRate*100, o.Summary.DefenderWinRate*100, o.Summary.MeanRounds)
	case o.Result != nil:
		return fmt.Sprintf(" (%s after %d rounds)", o.Result.Winner, o.Result.Rounds)
	}
	return ""
}

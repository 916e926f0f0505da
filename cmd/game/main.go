// Command game fights a duel between two catalog units and prints the
// narration, or with -runs a summary of many duels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/api"
	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/config"
	"github.com/pefman/w40k-combat/internal/dice"
	"github.com/pefman/w40k-combat/internal/logging"
	"github.com/pefman/w40k-combat/internal/models"
	"github.com/pefman/w40k-combat/internal/sim"
	"github.com/pefman/w40k-combat/internal/stats"
)

type options struct {
	cfg         config.Config
	attacker    string
	defender    string
	distance    int
	seed        uint64
	runs        int
	battleShock bool
	verbose     bool
	list        bool
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	cfg, err := config.Parse()
	if err != nil {
		return options{}, err
	}
	var opts options
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg.RegisterFlags(fs)
	fs.StringVar(&opts.attacker, "attacker", "allarus-custodians", "attacking unit id")
	fs.StringVar(&opts.defender, "defender", "genestealers", "defending unit id")
	fs.IntVar(&opts.distance, "distance", 24, "starting distance in inches")
	fs.Uint64Var(&opts.seed, "seed", 0, "dice seed (0 for a random one)")
	fs.IntVar(&opts.runs, "runs", 1, "number of battles; more than one prints a summary")
	fs.BoolVar(&opts.battleShock, "battle-shock", false, "test battle-shock at the end of each round")
	fs.BoolVar(&opts.verbose, "v", false, "print every weapon's rolls")
	fs.BoolVar(&opts.list, "list", false, "list unit ids and exit")
	fs.StringVar(&cfg.APIBase, "remote", cfg.APIBase, "battle server URL (empty to fight locally)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if err := cfg.ValidateSim(); err != nil {
		return options{}, err
	}
	opts.cfg = cfg
	if opts.runs < 1 {
		return options{}, fmt.Errorf("runs must be at least 1, got %d", opts.runs)
	}
	return opts, nil
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

	if opts.seed == 0 {
		if opts.seed, err = dice.NewSeed(); err != nil {
			return err
		}
	}
	if opts.cfg.APIBase != "" {
		return runRemote(ctx, opts, out)
	}

	cat, err := catalog.Open(opts.cfg.Catalog)
	if err != nil {
		return err
	}
	if opts.list {
		return listUnits(out, cat)
	}
	att, err := cat.Unit(opts.attacker)
	if err != nil {
		return err
	}
	def, err := cat.Unit(opts.defender)
	if err != nil {
		return err
	}

	if opts.runs > 1 {
		runner := sim.Runner{
			Workers:     opts.cfg.Workers,
			Seed:        opts.seed,
			MaxRounds:   opts.cfg.MaxRounds,
			BattleShock: opts.battleShock,
			Logger:      log,
		}
		s, err := runner.Run(ctx, att, def, opts.distance, opts.runs)
		if err != nil {
			return err
		}
		printSummary(out, att.Name, def.Name, opts.seed, s)
		return nil
	}

	engineLog := zap.NewNop()
	if strings.EqualFold(opts.cfg.LogLevel, "debug") {
		engineLog = log
	}
	e := combat.NewEngine(dice.NewRand(opts.seed, 0), engineLog)
	e.MaxRounds = opts.cfg.MaxRounds
	e.BattleShock = opts.battleShock
	e.SkipEvents = true
	e.Observe = func(ev combat.Event) { printEvent(out, ev, opts.verbose) }
	res, err := e.Simulate(att, def, opts.distance)
	if err != nil {
		return err
	}
	printResult(out, att.Name, def.Name, opts.seed, res.Winner, res.Rounds)
	return nil
}

func runRemote(ctx context.Context, opts options, out io.Writer) error {
	c := api.NewClient(opts.cfg.APIBase)
	if opts.list {
		units, err := c.Units(ctx)
		if err != nil {
			return err
		}
		for _, u := range units {
			fmt.Fprintf(out, "%-20s %s (%d pts)\n", u.ID, u.Unit.Name, u.Unit.Points)
		}
		return nil
	}
	req := models.BattleRequest{
		Attacker:    opts.attacker,
		Defender:    opts.defender,
		Distance:    opts.distance,
		Seed:        &opts.seed,
		BattleShock: opts.battleShock,
	}
	if opts.runs > 1 {
		resp, err := c.Batch(ctx, models.BatchRequest{BattleRequest: req, Runs: opts.runs})
		if err != nil {
			return err
		}
		printSummary(out, resp.AttackerName, resp.DefenderName, resp.Seed, resp.Summary)
		return nil
	}
	resp, err := c.Battle(ctx, req)
	if err != nil {
		return err
	}
	for _, ev := range resp.Events {
		printEvent(out, ev, opts.verbose)
	}
	printResult(out, resp.AttackerName, resp.DefenderName, resp.Seed, resp.Winner, resp.Rounds)
	return nil
}

func listUnits(out io.Writer, cat *catalog.Catalog) error {
	for _, id := range cat.IDs() {
		u, err := cat.Unit(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %s (%d pts)\n", id, u.Name, u.Points)
	}
	return nil
}

func printEvent(out io.Writer, ev combat.Event, verbose bool) {
	fmt.Fprintln(out, ev.Message)
	if !verbose {
		return
	}
	for _, r := range ev.Attacks {
		fmt.Fprintf(out, "  %s: %d attacks, %d hits (%d+), %d wounds (%d+), %d failed saves (%d+), %d damage, %d slain\n",
			r.Weapon, r.Attacks,
			r.Hits.Success, r.Hits.Target,
			r.Wounds.Success, r.Wounds.Target,
			r.Saves.Success, r.Saves.Target,
			r.Damage, r.ModelsSlain)
	}
}

func printResult(out io.Writer, att, def string, seed uint64, w combat.Winner, rounds int) {
	switch w {
	case combat.AttackerWins:
		fmt.Fprintf(out, "Winner: %s after %d rounds (seed %d)\n", att, rounds, seed)
	case combat.DefenderWins:
		fmt.Fprintf(out, "Winner: %s after %d rounds (seed %d)\n", def, rounds, seed)
	default:
		fmt.Fprintf(out, "Draw after %d rounds (seed %d)\n", rounds, seed)
	}
}

func printSummary(out io.Writer, att, def string, seed uint64, s stats.Summary) {
	fmt.Fprintf(out, "%s vs %s, %d battles (seed %d)\n", att, def, s.Battles, seed)
	fmt.Fprintf(out, "  attacker wins  %6d  %5.1f%%\n", s.AttackerWins, 100*s.AttackerWinRate)
	fmt.Fprintf(out, "  defender wins  %6d  %5.1f%%\n", s.DefenderWins, 100*s.DefenderWinRate)
	fmt.Fprintf(out, "  draws          %6d  %5.1f%%\n", s.Draws, 100*s.DrawRate)
	fmt.Fprintf(out, "  rounds         mean %.2f, shortest %d, longest %d\n", s.MeanRounds, s.ShortestBattle, s.LongestBattle)
	fmt.Fprintf(out, "  survivors      attacker %.2f, defender %.2f models\n", s.MeanAttackerModels, s.MeanDefenderModels)
	if v := s.BestVolley; v != nil {
		fmt.Fprintf(out, "  best volley    %s with %s: %d damage, %d slain (battle %d, round %d)\n",
			v.Unit, v.Weapon, v.Damage, v.ModelsSlain, v.Battle, v.Round)
	}
}

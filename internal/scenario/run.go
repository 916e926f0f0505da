package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/dice"
	"github.com/pefman/w40k-combat/internal/sim"
	"github.com/pefman/w40k-combat/internal/stats"
)

// Outcome is the result of one battle of a scenario.
type Outcome struct {
	Battle   Battle
	Result   *combat.Result // single runs
	Summary  *stats.Summary // batches
	Failures []string
}

// Passed reports whether every expectation held.
func (o Outcome) Passed() bool { return len(o.Failures) == 0 }

// Runner plays scenarios against a catalog.
type Runner struct {
	Catalog   *catalog.Catalog
	Logger    *zap.Logger
	Workers   int
	MaxRounds int
}

// Run plays every battle of sc in order. An error means a battle could not
// be fought at all; failed expectations are reported in the outcomes.
func (r Runner) Run(ctx context.Context, sc *Scenario) ([]Outcome, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	outcomes := make([]Outcome, 0, len(sc.Battles))
	for _, b := range sc.Battles {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o, err := r.battle(ctx, b)
		if err != nil {
			return outcomes, fmt.Errorf("%s: %s: %w", sc.Name, b.Name, err)
		}
		log.Info("scenario battle",
			zap.String("scenario", sc.Name),
			zap.String("battle", b.Name),
			zap.Bool("passed", o.Passed()),
			zap.Strings("failures", o.Failures),
		)
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (r Runner) battle(ctx context.Context, b Battle) (Outcome, error) {
	att, err := r.Catalog.Unit(b.Attacker)
	if err != nil {
		return Outcome{}, err
	}
	def, err := r.Catalog.Unit(b.Defender)
	if err != nil {
		return Outcome{}, err
	}
	o := Outcome{Battle: b}

	if b.Runs > 1 {
		runner := sim.Runner{
			Workers:     r.Workers,
			Seed:        b.Seed,
			MaxRounds:   r.MaxRounds,
			BattleShock: b.BattleShock,
			Logger:      r.Logger,
		}
		s, err := runner.Run(ctx, att, def, b.Distance, b.Runs)
		if err != nil {
			return Outcome{}, err
		}
		o.Summary = &s
		if w := b.Expect.Winner; w != nil {
			if rate := s.Rate(*w); rate < b.Expect.MinRate {
				o.fail("%s won %.1f%% of battles, want at least %.1f%%", *w, rate*100, b.Expect.MinRate*100)
			}
		}
		if limit := b.Expect.MaxRounds; limit > 0 && s.MeanRounds > float64(limit) {
			o.fail("battles lasted %.2f rounds on average, want at most %d", s.MeanRounds, limit)
		}
		return o, nil
	}

	seq, err := dice.NewSequence(b.Dice...)
	if err != nil {
		return Outcome{}, err
	}
	seq.Fallback = dice.NewRand(b.Seed, 0)
	e := combat.NewEngine(seq, r.Logger)
	e.MaxRounds = r.MaxRounds
	e.BattleShock = b.BattleShock
	res, err := e.Simulate(att, def, b.Distance)
	if err != nil {
		return Outcome{}, err
	}
	o.Result = &res
	if w := b.Expect.Winner; w != nil && res.Winner != *w {
		o.fail("winner is %s, want %s", res.Winner, *w)
	}
	if limit := b.Expect.MaxRounds; limit > 0 && res.Rounds > limit {
		o.fail("battle lasted %d rounds, want at most %d", res.Rounds, limit)
	}
	return o, nil
}

func (o *Outcome) fail(format string, args ...any) {
	o.Failures = append(o.Failures, fmt.Sprintf(format, args...))
}

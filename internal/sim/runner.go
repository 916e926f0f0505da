// Package sim runs many independent battles and aggregates the outcome.
package sim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/dice"
	"github.com/pefman/w40k-combat/internal/stats"
)

// MaxRuns bounds a single batch.
const MaxRuns = 100_000

// ErrInvalidRuns is returned for a batch size outside [1, MaxRuns].
var ErrInvalidRuns = errors.New("invalid number of runs")

// Runner simulates batches of battles. Battle i of a batch rolls with
// dice.NewRand(Seed, i), so a batch gives the same summary whatever the
// number of workers.
type Runner struct {
	Workers     int // <= 0 means runtime.NumCPU()
	Seed        uint64
	MaxRounds   int
	BattleShock bool
	Logger      *zap.Logger

	// Progress, when set, is called from the worker goroutines after each
	// battle with the number done so far.
	Progress func(done, total int)
}

// Run fights att against def runs times.
func (r Runner) Run(ctx context.Context, att, def combat.Unit, distance, runs int) (stats.Summary, error) {
	if runs < 1 || runs > MaxRuns {
		return stats.Summary{}, fmt.Errorf("%w: %d, want 1-%d", ErrInvalidRuns, runs, MaxRuns)
	}
	if err := combat.CheckMatchup(att, def, distance); err != nil {
		return stats.Summary{}, err
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, runs)

	var tally stats.Tally
	var done atomic.Int64
	jobs := make(chan int)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range runs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for range workers {
		g.Go(func() error {
			for i := range jobs {
				res, err := r.battle(i, att, def, distance, &tally)
				if err != nil {
					return fmt.Errorf("battle %d: %w", i, err)
				}
				tally.Record(res)
				n := int(done.Add(1))
				if r.Progress != nil {
					r.Progress(n, runs)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats.Summary{}, err
	}

	s := tally.Summary()
	log.Info("batch finished",
		zap.String("attacker", att.Name),
		zap.String("defender", def.Name),
		zap.Int("runs", runs),
		zap.Int("workers", workers),
		zap.Float64("attacker_win_rate", s.AttackerWinRate),
		zap.Float64("mean_rounds", s.MeanRounds),
	)
	return s, nil
}

func (r Runner) battle(i int, att, def combat.Unit, distance int, tally *stats.Tally) (combat.Result, error) {
	e := combat.NewEngine(dice.NewRand(r.Seed, uint64(i)), nil)
	e.MaxRounds = r.MaxRounds
	e.BattleShock = r.BattleShock
	e.SkipEvents = true
	e.Observe = func(ev combat.Event) {
		unit := att.Name
		if ev.Phase == combat.PhaseMeleeDefender {
			unit = def.Name
		}
		for _, rep := range ev.Attacks {
			tally.Offer(stats.Volley{
				Battle:      i,
				Unit:        unit,
				Weapon:      rep.Weapon,
				Round:       ev.Round,
				Damage:      rep.Damage,
				ModelsSlain: rep.ModelsSlain,
			})
		}
	}
	return e.Simulate(att, def, distance)
}

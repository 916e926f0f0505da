// Package stats aggregates the outcomes of many battles.
package stats

import (
	"sync"

	"github.com/pefman/w40k-combat/internal/combat"
)

// Volley identifies one weapon's attack for the "best volley" record.
type Volley struct {
	Battle      int    `json:"battle"`
	Unit        string `json:"unit"`
	Weapon      string `json:"weapon"`
	Round       int    `json:"round"`
	Damage      int    `json:"damage"`
	ModelsSlain int    `json:"models_slain"`
}

// Summary is a snapshot of a Tally.
type Summary struct {
	Battles            int     `json:"battles"`
	AttackerWins       int     `json:"attacker_wins"`
	DefenderWins       int     `json:"defender_wins"`
	Draws              int     `json:"draws"`
	AttackerWinRate    float64 `json:"attacker_win_rate"`
	DefenderWinRate    float64 `json:"defender_win_rate"`
	DrawRate           float64 `json:"draw_rate"`
	MeanRounds         float64 `json:"mean_rounds"`
	ShortestBattle     int     `json:"shortest_battle"`
	LongestBattle      int     `json:"longest_battle"`
	MeanAttackerModels float64 `json:"mean_attacker_models"` // survivors, averaged over all battles
	MeanDefenderModels float64 `json:"mean_defender_models"`
	BestVolley         *Volley `json:"best_volley,omitempty"`
}

// Rate returns the share of battles that ended with w.
func (s Summary) Rate(w combat.Winner) float64 {
	switch w {
	case combat.AttackerWins:
		return s.AttackerWinRate
	case combat.DefenderWins:
		return s.DefenderWinRate
	default:
		return s.DrawRate
	}
}

// Tally collects battle results. Safe for concurrent use.
type Tally struct {
	mu        sync.Mutex
	battles   int
	wins      [3]int // indexed by combat.Winner
	rounds    int
	shortest  int
	longest   int
	attModels int
	defModels int
	best      *Volley
}

// Record adds one finished battle.
func (t *Tally) Record(res combat.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.battles++
	if res.Winner >= combat.Draw && res.Winner <= combat.DefenderWins {
		t.wins[res.Winner]++
	}
	t.rounds += res.Rounds
	if t.shortest == 0 || res.Rounds < t.shortest {
		t.shortest = res.Rounds
	}
	if res.Rounds > t.longest {
		t.longest = res.Rounds
	}
	t.attModels += res.Attacker.Models
	t.defModels += res.Defender.Models
}

// Offer keeps v if it beats the best volley so far: more damage, then more
// models slain, then the earlier battle.
func (t *Tally) Offer(v Volley) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.best == nil || better(v, *t.best) {
		t.best = &v
	}
}

func better(v, cur Volley) bool {
	if v.Damage != cur.Damage {
		return v.Damage > cur.Damage
	}
	if v.ModelsSlain != cur.ModelsSlain {
		return v.ModelsSlain > cur.ModelsSlain
	}
	return v.Battle < cur.Battle
}

// Summary returns the aggregate so far.
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{
		Battles:        t.battles,
		AttackerWins:   t.wins[combat.AttackerWins],
		DefenderWins:   t.wins[combat.DefenderWins],
		Draws:          t.wins[combat.Draw],
		ShortestBattle: t.shortest,
		LongestBattle:  t.longest,
	}
	if t.best != nil {
		best := *t.best
		s.BestVolley = &best
	}
	if t.battles == 0 {
		return s
	}
	n := float64(t.battles)
	s.AttackerWinRate = float64(s.AttackerWins) / n
	s.DefenderWinRate = float64(s.DefenderWins) / n
	s.DrawRate = float64(s.Draws) / n
	s.MeanRounds = float64(t.rounds) / n
	s.MeanAttackerModels = float64(t.attModels) / n
	s.MeanDefenderModels = float64(t.defModels) / n
	return s
}

// Reset clears everything recorded so far.
func (t *Tally) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.battles, t.rounds, t.shortest, t.longest = 0, 0, 0, 0
	t.attModels, t.defModels = 0, 0
	t.wins = [3]int{}
	t.best = nil
}

package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pefman/w40k-combat/internal/dice"
)

func TestWoundThreshold(t *testing.T) {
	tests := []struct {
		s, t, want int
	}{
		{8, 4, 2},
		{5, 4, 3},
		{4, 4, 4},
		{3, 4, 5},
		{2, 8, 6},
		{2, 4, 6},
		{9, 4, 2},
		{7, 4, 3},
		{1, 1, 4},
		{10, 6, 3},
		{5, 9, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WoundThreshold(tt.s, tt.t), "S%d vs T%d", tt.s, tt.t)
	}
}

func TestSaveThreshold(t *testing.T) {
	tests := []struct {
		name string
		def  Statline
		ap   int
		want int
	}{
		{"invulnerable better", Statline{Save: 3, Invulnerable: 4}, 2, 4},
		{"armour better", Statline{Save: 2, Invulnerable: 4}, 1, 3},
		{"no invulnerable", Statline{Save: 5}, 1, 6},
		{"unreachable invulnerable", Statline{Save: 5, Invulnerable: 7}, 1, 6},
		{"save beyond a die", Statline{Save: 6}, 2, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SaveThreshold(tt.def, tt.ap))
		})
	}
}

func TestHit(t *testing.T) {
	w := Weapon{Name: "Bolter", Attacks: dice.Flat(4), Skill: 3}
	src := dice.Fixed(1, 3, 6, 2)
	assert.Equal(t, 2, Hit(src, w))
	assert.Zero(t, src.Remaining())

	// D6+3 attacks: the first die sets the count.
	w.Attacks = dice.MustParseExpr("D6+3")
	src = dice.Fixed(2, 3, 3, 3, 1, 1)
	assert.Equal(t, 3, Hit(src, w))
	assert.Zero(t, src.Remaining())

	torrent := Weapon{Name: "Pulse", Attacks: dice.Flat(3), Skill: 0}
	assert.Equal(t, 3, Hit(dice.Fixed(1, 1, 1), torrent))
}

func TestWound(t *testing.T) {
	w := Weapon{Name: "Rifle", Strength: 5}
	src := dice.Fixed(2, 3, 6)
	assert.Equal(t, 2, Wound(src, w, Statline{Toughness: 4}, 3))
	assert.Zero(t, Wound(dice.Fixed(), w, Statline{Toughness: 4}, 0))
}

func TestSave(t *testing.T) {
	w := Weapon{Name: "Rifle", AP: 1}
	def := Statline{Save: 5, Invulnerable: 7}
	src := dice.Fixed(6, 5, 1)
	assert.Equal(t, 2, Save(src, w, def, 3), "5 and 1 fail a 6+ save")
}

func TestDamage(t *testing.T) {
	tests := []struct {
		name   string
		def    Statline
		st     LiveState
		failed int
		perHit int
		want   LiveState
	}{
		{"overkill removes the model", Statline{Wounds: 3}, LiveState{2, 3}, 1, 5, LiveState{1, 3}},
		{"partial damage", Statline{Wounds: 3}, LiveState{2, 3}, 1, 2, LiveState{2, 1}},
		{"exact remaining wounds", Statline{Wounds: 4}, LiveState{2, 1}, 1, 1, LiveState{1, 4}},
		{"accumulates across instances", Statline{Wounds: 2}, LiveState{5, 2}, 3, 1, LiveState{4, 1}},
		{"last model", Statline{Wounds: 2}, LiveState{1, 2}, 1, 2, LiveState{0, 0}},
		{"surplus hits are lost", Statline{Wounds: 1}, LiveState{2, 1}, 5, 1, LiveState{0, 0}},
		{"nothing left to damage", Statline{Wounds: 2}, LiveState{0, 0}, 3, 2, LiveState{0, 0}},
		{"no failed saves", Statline{Wounds: 2}, LiveState{3, 1}, 0, 2, LiveState{3, 1}},
		{"out of range wounds reset", Statline{Wounds: 3}, LiveState{2, 0}, 1, 1, LiveState{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Damage(tt.def, tt.st, tt.failed, tt.perHit))
		})
	}
}

func TestAttack_Report(t *testing.T) {
	w := Weapon{Name: "Rifle", Range: 18, Attacks: dice.Flat(4), Skill: 3, Strength: 5, AP: 1, Damage: 2}
	def := Statline{Toughness: 4, Save: 5, Invulnerable: 7, Wounds: 2}
	src := dice.Fixed(3, 4, 1, 6, 2, 5, 3, 6, 2)

	st, rep := Attack(src, w, def, LiveState{Models: 5, Wounds: 2})
	assert.Equal(t, LiveState{Models: 4, Wounds: 2}, st)
	assert.Zero(t, src.Remaining())

	assert.Equal(t, "Rifle", rep.Weapon)
	assert.Equal(t, 4, rep.Attacks)
	assert.Equal(t, StepRolls{Target: 3, Rolls: []int{3, 4, 1, 6}, Success: 3}, rep.Hits)
	assert.Equal(t, StepRolls{Target: 3, Rolls: []int{2, 5, 3}, Success: 2}, rep.Wounds)
	assert.Equal(t, StepRolls{Target: 6, Rolls: []int{6, 2}, Success: 1}, rep.Saves)
	assert.Equal(t, 2, rep.Damage)
	assert.Equal(t, 1, rep.ModelsSlain)
	assert.Equal(t, LiveState{Models: 5, Wounds: 2}, rep.Before)
	assert.Equal(t, st, rep.After)
}

func TestHit_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attacks := rapid.IntRange(0, 40).Draw(t, "attacks")
		skill := rapid.IntRange(0, 6).Draw(t, "skill")
		seed := rapid.Uint64().Draw(t, "seed")
		w := Weapon{Name: "w", Attacks: dice.Flat(attacks), Skill: skill}

		hits := Hit(dice.NewRand(seed, 0), w)
		if hits < 0 || hits > attacks {
			t.Fatalf("hits %d outside [0, %d]", hits, attacks)
		}
	})
}

func TestHit_LowerSkillNeverHitsLess(t *testing.T) {
	const trials = 2000
	mean := func(skill int) float64 {
		w := Weapon{Name: "w", Attacks: dice.MustParseExpr("D6+2"), Skill: skill}
		total := 0
		for i := range trials {
			total += Hit(dice.NewRand(17, uint64(i)), w)
		}
		return float64(total) / trials
	}
	for k := 2; k <= 6; k++ {
		assert.GreaterOrEqual(t, mean(k-1), mean(k), "skill %d+ vs %d+", k-1, k)
	}

	// With the same dice a better skill keeps every hit and may add more.
	rapid.Check(t, func(t *rapid.T) {
		attacks := rapid.IntRange(0, 30).Draw(t, "attacks")
		k := rapid.IntRange(2, 6).Draw(t, "skill")
		seed := rapid.Uint64().Draw(t, "seed")
		better := Hit(dice.NewRand(seed, 0), Weapon{Attacks: dice.Flat(attacks), Skill: k - 1})
		worse := Hit(dice.NewRand(seed, 0), Weapon{Attacks: dice.Flat(attacks), Skill: k})
		if better < worse {
			t.Fatalf("skill %d+ hit %d times, %d+ hit %d times", k-1, better, k, worse)
		}
	})
}

func TestDamage_Invariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(t, "capacity")
		models := rapid.IntRange(1, 10).Draw(t, "models")
		wounds := rapid.IntRange(1, capacity).Draw(t, "wounds")
		failed := rapid.IntRange(0, 30).Draw(t, "failed")
		perHit := rapid.IntRange(1, 12).Draw(t, "perHit")

		got := Damage(Statline{Wounds: capacity}, LiveState{models, wounds}, failed, perHit)
		if got.Models < 0 || got.Models > models {
			t.Fatalf("models %d outside [0, %d]", got.Models, models)
		}
		if got.Models > 0 && (got.Wounds < 1 || got.Wounds > capacity) {
			t.Fatalf("live model left with %d wounds (capacity %d)", got.Wounds, capacity)
		}
		if got.Models == 0 && got.Wounds != 0 {
			t.Fatalf("eliminated unit reports %d wounds", got.Wounds)
		}
		if failed == 0 && got != (LiveState{models, wounds}) {
			t.Fatalf("no failed saves changed state to %+v", got)
		}
	})
}

func TestAttack_SameDiceSameOutcome(t *testing.T) {
	w := Weapon{Name: "Spear", Attacks: dice.MustParseExpr("D6"), Skill: 2, Strength: 7, AP: 2, Damage: 2}
	def := Statline{Toughness: 4, Save: 3, Wounds: 2}
	rolls := []int{5, 2, 6, 1, 4, 3, 6, 5, 2, 2, 1, 4, 3, 1}
	start := LiveState{Models: 5, Wounds: 2}

	first, rep1 := Attack(dice.Fixed(rolls...), w, def, start)
	second, rep2 := Attack(dice.Fixed(rolls...), w, def, start)
	require.Equal(t, first, second)
	assert.Equal(t, rep1, rep2)
}

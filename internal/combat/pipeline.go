package combat

import (
	"github.com/pefman/w40k-combat/internal/dice"
)

// WoundThreshold returns the roll (2-6) needed to wound.
func WoundThreshold(strength, toughness int) int {
	switch {
	case strength >= 2*toughness:
		return 2
	case strength > toughness:
		return 3
	case strength == toughness:
		return 4
	case strength*2 <= toughness:
		return 6
	default:
		return 5
	}
}

// SaveThreshold returns the save the defender rolls against: the armour
// save worsened by ap, or the invulnerable save when that is better.
func SaveThreshold(def Statline, ap int) int {
	return min(def.Save+ap, def.invulnerable())
}

// Hit rolls the weapon's attacks and returns how many hit.
func Hit(src dice.Source, w Weapon) int {
	n, _ := rollAtLeast(src, w.Attacks.Roll(src), w.Skill)
	return n
}

// Wound rolls one die per hit against the strength/toughness threshold.
func Wound(src dice.Source, w Weapon, def Statline, hits int) int {
	n, _ := rollAtLeast(src, hits, WoundThreshold(w.Strength, def.Toughness))
	return n
}

// Save rolls one die per wound and returns the number of failed saves.
func Save(src dice.Source, w Weapon, def Statline, wounds int) int {
	failed, _ := rollSaves(src, wounds, SaveThreshold(def, w.AP))
	return failed
}

// Damage applies failed saves one at a time to st. A hit that meets either
// the model's full wounds or its remaining wounds removes the model; the
// next one starts fresh. Once no models remain further hits do nothing.
func Damage(def Statline, st LiveState, failed, perHit int) LiveState {
	if st.Models <= 0 {
		return LiveState{}
	}
	if st.Wounds < 1 || st.Wounds > def.Wounds {
		st.Wounds = def.Wounds
	}
	for range failed {
		if perHit >= def.Wounds || perHit >= st.Wounds {
			st.Models--
			if st.Models == 0 {
				return LiveState{}
			}
			st.Wounds = def.Wounds
			continue
		}
		st.Wounds -= perHit
	}
	return st
}

// Attack resolves one weapon's full sequence against the defender.
func Attack(src dice.Source, w Weapon, def Statline, st LiveState) (LiveState, AttackReport) {
	rep := AttackReport{Weapon: w.Name, Before: st}
	rep.Attacks = w.Attacks.Roll(src)

	rep.Hits.Target = w.Skill
	rep.Hits.Success, rep.Hits.Rolls = rollAtLeast(src, rep.Attacks, w.Skill)

	rep.Wounds.Target = WoundThreshold(w.Strength, def.Toughness)
	rep.Wounds.Success, rep.Wounds.Rolls = rollAtLeast(src, rep.Hits.Success, rep.Wounds.Target)

	rep.Saves.Target = SaveThreshold(def, w.AP)
	rep.Saves.Success, rep.Saves.Rolls = rollSaves(src, rep.Wounds.Success, rep.Saves.Target)

	after := Damage(def, st, rep.Saves.Success, w.Damage)
	rep.Damage = rep.Saves.Success * w.Damage
	rep.After = after
	rep.ModelsSlain = st.Models - after.Models
	return after, rep
}

// rollAtLeast rolls n dice and counts those meeting target.
func rollAtLeast(src dice.Source, n, target int) (int, []int) {
	if n <= 0 {
		return 0, nil
	}
	rolls := make([]int, n)
	success := 0
	for i := range rolls {
		rolls[i] = src.D6()
		if rolls[i] >= target {
			success++
		}
	}
	return success, rolls
}

// rollSaves rolls n saves and counts the failures (below target).
func rollSaves(src dice.Source, n, target int) (int, []int) {
	if n <= 0 {
		return 0, nil
	}
	rolls := make([]int, n)
	failed := 0
	for i := range rolls {
		rolls[i] = src.D6()
		if rolls[i] < target {
			failed++
		}
	}
	return failed, rolls
}

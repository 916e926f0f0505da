package combat

import (
	"github.com/pefman/w40k-combat/internal/dice"
)

// MaxChargeDistance is the furthest a unit will attempt to charge from.
const MaxChargeDistance = 12

// Move returns the distance left after a unit advances its full movement.
func Move(distance, movement int) int {
	return max(0, distance-movement)
}

// Shoot fires every ranged weapon in range, in loadout order, threading the
// defender's state through each volley. Weapons out of range are skipped,
// as is everything after the defender has been wiped out.
func Shoot(src dice.Source, ranged []Weapon, def Statline, st LiveState, distance int) (LiveState, []AttackReport) {
	var reports []AttackReport
	for _, w := range ranged {
		if Eliminated(st) {
			break
		}
		if distance > w.Range {
			continue
		}
		var rep AttackReport
		st, rep = Attack(src, w, def, st)
		reports = append(reports, rep)
	}
	return st, reports
}

// ChargeResult is the outcome of a charge attempt.
type ChargeResult struct {
	Engaged  bool `json:"engaged"`
	Charged  bool `json:"charged"`  // true only when a roll succeeded this round
	Roll     int  `json:"roll"`     // 2D6 total, 0 when nothing was rolled
	Distance int  `json:"distance"` // distance after the attempt
}

// Charge attempts to close the gap. Units already in contact need no
// roll; beyond MaxChargeDistance nothing is attempted.
func Charge(src dice.Source, distance int) ChargeResult {
	switch {
	case distance <= 0:
		return ChargeResult{Engaged: true}
	case distance > MaxChargeDistance:
		return ChargeResult{Distance: distance}
	}
	roll := dice.Roll2D6(src)
	if roll >= distance {
		return ChargeResult{Engaged: true, Charged: true, Roll: roll}
	}
	return ChargeResult{Roll: roll, Distance: distance}
}

// Melee resolves every melee weapon against the opponent. Like Shoot but
// without a range check.
func Melee(src dice.Source, melee []Weapon, def Statline, st LiveState) (LiveState, []AttackReport) {
	var reports []AttackReport
	for _, w := range melee {
		if Eliminated(st) {
			break
		}
		var rep AttackReport
		st, rep = Attack(src, w, def, st)
		reports = append(reports, rep)
	}
	return st, reports
}

// Eliminated reports whether a side has no models left.
func Eliminated(st LiveState) bool {
	return st.Models <= 0
}

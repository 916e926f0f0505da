package combat

import (
	"errors"
	"fmt"
	"math"

	"github.com/pefman/w40k-combat/internal/dice"
)

var (
	// ErrInvalidUnit wraps every construction-time validation failure.
	ErrInvalidUnit = errors.New("invalid unit")
	// ErrInvalidDistance is returned for a negative starting distance.
	ErrInvalidDistance = errors.New("invalid distance")
	// ErrNoDamageSource is returned when neither side could ever wound the other.
	ErrNoDamageSource = errors.New("neither unit can inflict damage")
)

// Statline is a unit's defensive and mobility profile.
type Statline struct {
	Movement         int `yaml:"movement" json:"movement"`
	Toughness        int `yaml:"toughness" json:"toughness"`
	Save             int `yaml:"save" json:"save"`                 // 3 means 3+
	Invulnerable     int `yaml:"invulnerable" json:"invulnerable"` // 0 if none
	Wounds           int `yaml:"wounds" json:"wounds"`             // per model
	Leadership       int `yaml:"leadership" json:"leadership"`
	ObjectiveControl int `yaml:"objective_control" json:"objective_control"`
}

// invulnerable returns the invulnerable save threshold, or a value no
// modified armour save can exceed when the unit has none.
func (s Statline) invulnerable() int {
	if s.Invulnerable <= 0 {
		return math.MaxInt32
	}
	return s.Invulnerable
}

// Weapon is one offensive profile.
type Weapon struct {
	Name     string    `yaml:"name" json:"name"`
	Range    int       `yaml:"range" json:"range"` // 0 for melee
	Attacks  dice.Expr `yaml:"attacks" json:"attacks"`
	Skill    int       `yaml:"skill" json:"skill"` // hit threshold; 3 means 3+
	Strength int       `yaml:"strength" json:"strength"`
	AP       int       `yaml:"ap" json:"ap"` // added to the defender's save
	Damage   int       `yaml:"damage" json:"damage"`
	Tags     []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Loadout splits a unit's weapons by kind. Both slices are resolved in order.
type Loadout struct {
	Ranged []Weapon `yaml:"ranged,omitempty" json:"ranged,omitempty"`
	Melee  []Weapon `yaml:"melee,omitempty" json:"melee,omitempty"`
}

// Unit is the immutable definition of a combatant. Combat never mutates
// it; the changing part lives in LiveState.
type Unit struct {
	Name    string   `yaml:"name" json:"name"`
	Points  int      `yaml:"points" json:"points"`
	Models  int      `yaml:"models" json:"models"`
	Stats   Statline `yaml:"stats" json:"stats"`
	Weapons Loadout  `yaml:",inline" json:"weapons"`
	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// LiveState is the part of a unit that combat changes: models left and
// wounds left on the model currently taking damage.
type LiveState struct {
	Models int `json:"models"`
	Wounds int `json:"wounds"`
}

// Fresh is the unit's state before any damage.
func (u Unit) Fresh() LiveState {
	return LiveState{Models: u.Models, Wounds: u.Stats.Wounds}
}

// Armed reports whether the unit carries any weapon at all.
func (u Unit) Armed() bool {
	return len(u.Weapons.Ranged) > 0 || len(u.Weapons.Melee) > 0
}

// Validate reports every malformed field, joined, wrapped in ErrInvalidUnit.
func (u Unit) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	if u.Name == "" {
		bad("name is required")
	}
	if u.Points < 0 {
		bad("points must not be negative, got %d", u.Points)
	}
	if u.Models < 1 {
		bad("models must be at least 1, got %d", u.Models)
	}
	s := u.Stats
	for _, f := range []struct {
		name string
		v    int
	}{{"toughness", s.Toughness}, {"save", s.Save}, {"wounds", s.Wounds}} {
		if f.v < 1 {
			bad("%s must be at least 1, got %d", f.name, f.v)
		}
	}
	for _, f := range []struct {
		name string
		v    int
	}{{"movement", s.Movement}, {"invulnerable", s.Invulnerable}, {"leadership", s.Leadership}, {"objective_control", s.ObjectiveControl}} {
		if f.v < 0 {
			bad("%s must not be negative, got %d", f.name, f.v)
		}
	}
	for i, w := range u.Weapons.Ranged {
		if err := w.validate(); err != nil {
			bad("ranged weapon %d: %w", i, err)
		}
	}
	for i, w := range u.Weapons.Melee {
		if err := w.validate(); err != nil {
			bad("melee weapon %d: %w", i, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidUnit, u.Name, errors.Join(errs...))
}

func (w Weapon) validate() error {
	var errs []error
	if w.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if w.Range < 0 {
		errs = append(errs, fmt.Errorf("range must not be negative, got %d", w.Range))
	}
	if w.Attacks.IsFlat() && w.Attacks.K < 0 {
		errs = append(errs, fmt.Errorf("attacks must not be negative, got %d", w.Attacks.K))
	}
	if w.Skill < 0 || w.Skill > 6 {
		errs = append(errs, fmt.Errorf("skill must be 0-6, got %d", w.Skill))
	}
	if w.Strength < 1 {
		errs = append(errs, fmt.Errorf("strength must be at least 1, got %d", w.Strength))
	}
	if w.AP < 0 {
		errs = append(errs, fmt.Errorf("ap must not be negative, got %d", w.AP))
	}
	if w.Damage < 1 {
		errs = append(errs, fmt.Errorf("damage must be at least 1, got %d", w.Damage))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%q: %w", w.Name, errors.Join(errs...))
}

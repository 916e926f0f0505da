package combat

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/dice"
)

// DefaultMaxRounds caps a battle when Engine.MaxRounds is unset.
const DefaultMaxRounds = 100

// Winner is the outcome of a battle.
type Winner int

const (
	Draw Winner = iota
	AttackerWins
	DefenderWins
)

func (w Winner) String() string {
	switch w {
	case AttackerWins:
		return "attacker"
	case DefenderWins:
		return "defender"
	default:
		return "draw"
	}
}

// ParseWinner is the inverse of Winner.String.
func ParseWinner(s string) (Winner, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attacker":
		return AttackerWins, nil
	case "defender":
		return DefenderWins, nil
	case "draw":
		return Draw, nil
	}
	return Draw, fmt.Errorf("unknown winner %q", s)
}

func (w Winner) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Winner) UnmarshalText(b []byte) error {
	v, err := ParseWinner(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Phase names a step of the round.
type Phase string

const (
	PhaseRoundStart    Phase = "round_start"
	PhaseMove          Phase = "move"
	PhaseShoot         Phase = "shoot"
	PhaseCharge        Phase = "charge"
	PhaseMeleeAttacker Phase = "melee_attacker"
	PhaseMeleeDefender Phase = "melee_defender"
	PhaseBattleShock   Phase = "battle_shock"
	PhaseEnd           Phase = "end"
)

// Event is one line of battle narration plus the state it describes.
type Event struct {
	Round    int            `json:"round"`
	Phase    Phase          `json:"phase"`
	Message  string         `json:"message"`
	Distance int            `json:"distance"`
	Attacker LiveState      `json:"attacker"`
	Defender LiveState      `json:"defender"`
	Attacks  []AttackReport `json:"attacks,omitempty"`
	Charge   *ChargeResult  `json:"charge,omitempty"`
	Shock    []ShockTest    `json:"shock,omitempty"`
}

// ShockTest is one side's battle-shock roll.
type ShockTest struct {
	Unit       string `json:"unit"`
	Roll       int    `json:"roll"`
	Leadership int    `json:"leadership"`
	Shaken     bool   `json:"shaken"`
}

// Result is the outcome of Simulate.
type Result struct {
	Winner   Winner    `json:"winner"`
	Rounds   int       `json:"rounds"`
	Attacker LiveState `json:"attacker"`
	Defender LiveState `json:"defender"`
	Events   []Event   `json:"events,omitempty"`
}

// Engine runs battles between two units. Only the attacker moves, shoots
// and charges; the defender fights back once the two are engaged.
type Engine struct {
	Dice   dice.Source
	Logger *zap.Logger

	// MaxRounds ends the battle in a draw; DefaultMaxRounds when <= 0.
	MaxRounds int
	// BattleShock tests units that lost models at the end of each round.
	BattleShock bool
	// Observe, when set, receives every event as it happens.
	Observe func(Event)
	// SkipEvents leaves Result.Events empty. Observe still fires.
	SkipEvents bool
}

// NewEngine returns an engine rolling with src. A nil logger logs nothing.
func NewEngine(src dice.Source, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Dice: src, Logger: logger, MaxRounds: DefaultMaxRounds}
}

// battle holds the mutable state of one Simulate call.
type battle struct {
	e        *Engine
	log      *zap.Logger
	att, def Unit
	attSt    LiveState
	defSt    LiveState
	distance int
	engaged  bool
	round    int
	events   []Event
}

// CheckMatchup reports whether att and def can fight from distance.
func CheckMatchup(att, def Unit, distance int) error {
	if err := att.Validate(); err != nil {
		return fmt.Errorf("attacker: %w", err)
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("defender: %w", err)
	}
	if distance < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDistance, distance)
	}
	if !att.Armed() && len(def.Weapons.Melee) == 0 {
		return fmt.Errorf("%w: %s vs %s", ErrNoDamageSource, att.Name, def.Name)
	}
	return nil
}

// Simulate fights att against def starting distance inches apart.
func (e *Engine) Simulate(att, def Unit, distance int) (Result, error) {
	if err := CheckMatchup(att, def, distance); err != nil {
		return Result{}, err
	}
	if e.Dice == nil {
		return Result{}, errors.New("combat: engine has no dice source")
	}
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxRounds := e.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	b := &battle{e: e, log: log, att: att, def: def, attSt: att.Fresh(), defSt: def.Fresh(), distance: distance}
	log.Debug("battle start",
		zap.String("attacker", att.Name),
		zap.String("defender", def.Name),
		zap.Int("distance", distance),
	)
	for b.round = 1; b.round <= maxRounds; b.round++ {
		if w, done := b.playRound(); done {
			return b.finish(w, b.round), nil
		}
	}
	b.emit(Event{Phase: PhaseEnd, Message: fmt.Sprintf("No decision after %d rounds, the battle is a draw.", maxRounds)})
	return b.finish(Draw, maxRounds), nil
}

// playRound runs one round and reports the winner once a side is gone.
func (b *battle) playRound() (Winner, bool) {
	src := b.e.Dice
	startAtt, startDef := b.attSt, b.defSt

	b.emit(Event{Phase: PhaseRoundStart, Message: fmt.Sprintf(
		"Round %d! %s has %d models and %d wounds. %s has %d models and %d wounds.",
		b.round, b.att.Name, b.attSt.Models, b.attSt.Wounds, b.def.Name, b.defSt.Models, b.defSt.Wounds)})

	if !b.engaged {
		b.distance = Move(b.distance, b.att.Stats.Movement)
		b.emit(Event{Phase: PhaseMove, Message: fmt.Sprintf("%s advances, %d inches to the enemy.", b.att.Name, b.distance)})
	}

	var reports []AttackReport
	b.defSt, reports = Shoot(src, b.att.Weapons.Ranged, b.def.Stats, b.defSt, b.distance)
	if len(b.att.Weapons.Ranged) > 0 {
		b.emit(Event{Phase: PhaseShoot, Attacks: reports, Message: b.volley(b.att.Name, b.def.Name, "shooting", reports, b.defSt)})
	}
	if Eliminated(b.defSt) {
		return AttackerWins, true
	}

	if !b.engaged {
		cr := Charge(src, b.distance)
		b.engaged, b.distance = cr.Engaged, cr.Distance
		b.emit(Event{Phase: PhaseCharge, Charge: &cr, Message: b.chargeMessage(cr)})
	}
	if !b.engaged {
		return b.endRound(startAtt, startDef)
	}

	b.defSt, reports = Melee(src, b.att.Weapons.Melee, b.def.Stats, b.defSt)
	b.emit(Event{Phase: PhaseMeleeAttacker, Attacks: reports, Message: b.volley(b.att.Name, b.def.Name, "melee", reports, b.defSt)})
	if Eliminated(b.defSt) {
		return AttackerWins, true
	}

	b.attSt, reports = Melee(src, b.def.Weapons.Melee, b.att.Stats, b.attSt)
	b.emit(Event{Phase: PhaseMeleeDefender, Attacks: reports, Message: b.volley(b.def.Name, b.att.Name, "melee", reports, b.attSt)})
	if Eliminated(b.attSt) {
		return DefenderWins, true
	}
	return b.endRound(startAtt, startDef)
}

func (b *battle) endRound(startAtt, startDef LiveState) (Winner, bool) {
	if !b.e.BattleShock {
		return Draw, false
	}
	var tests []ShockTest
	for _, side := range []struct {
		u           Unit
		before, now LiveState
	}{{b.att, startAtt, b.attSt}, {b.def, startDef, b.defSt}} {
		if side.now.Models >= side.before.Models || Eliminated(side.now) {
			continue
		}
		roll := dice.Roll2D6(b.e.Dice)
		tests = append(tests, ShockTest{
			Unit:       side.u.Name,
			Roll:       roll,
			Leadership: side.u.Stats.Leadership,
			Shaken:     roll < side.u.Stats.Leadership,
		})
	}
	if len(tests) > 0 {
		parts := make([]string, len(tests))
		for i, t := range tests {
			verdict := "holds"
			if t.Shaken {
				verdict = "is battle-shocked"
			}
			parts[i] = fmt.Sprintf("%s rolls %d against Leadership %d+ and %s.", t.Unit, t.Roll, t.Leadership, verdict)
		}
		b.emit(Event{Phase: PhaseBattleShock, Shock: tests, Message: strings.Join(parts, " ")})
	}
	return Draw, false
}

func (b *battle) finish(w Winner, rounds int) Result {
	switch w {
	case AttackerWins:
		b.emit(Event{Phase: PhaseEnd, Message: fmt.Sprintf("%s killed after %d rounds, %s still has %d models and %d wounds.",
			b.def.Name, rounds, b.att.Name, b.attSt.Models, b.attSt.Wounds)})
	case DefenderWins:
		b.emit(Event{Phase: PhaseEnd, Message: fmt.Sprintf("%s killed after %d rounds, %s still has %d models and %d wounds.",
			b.att.Name, rounds, b.def.Name, b.defSt.Models, b.defSt.Wounds)})
	}
	b.log.Debug("battle over",
		zap.Stringer("winner", w),
		zap.Int("rounds", rounds),
		zap.Int("attacker_models", b.attSt.Models),
		zap.Int("defender_models", b.defSt.Models),
	)
	return Result{Winner: w, Rounds: rounds, Attacker: b.attSt, Defender: b.defSt, Events: b.events}
}

func (b *battle) emit(ev Event) {
	ev.Round = b.round
	ev.Distance = b.distance
	ev.Attacker = b.attSt
	ev.Defender = b.defSt
	if !b.e.SkipEvents {
		b.events = append(b.events, ev)
	}
	if b.e.Observe != nil {
		b.e.Observe(ev)
	}
	log := b.log
	if ce := log.Check(zap.InfoLevel, ev.Message); ce != nil {
		ce.Write(zap.Int("round", ev.Round), zap.String("phase", string(ev.Phase)))
	}
	for _, r := range ev.Attacks {
		log.Debug("attack",
			zap.String("weapon", r.Weapon),
			zap.Int("attacks", r.Attacks),
			zap.Int("hits", r.Hits.Success),
			zap.Ints("hit_rolls", r.Hits.Rolls),
			zap.Int("wounds", r.Wounds.Success),
			zap.Ints("wound_rolls", r.Wounds.Rolls),
			zap.Int("failed_saves", r.Saves.Success),
			zap.Ints("save_rolls", r.Saves.Rolls),
			zap.Int("models_slain", r.ModelsSlain),
		)
	}
}

// volley summarises one side's attacks for the narration.
func (b *battle) volley(from, to, kind string, reports []AttackReport, after LiveState) string {
	if len(reports) == 0 {
		if kind == "shooting" {
			return fmt.Sprintf("%s has no target in range.", from)
		}
		return fmt.Sprintf("%s has nothing to fight with.", from)
	}
	dealt, slain := 0, 0
	for _, r := range reports {
		dealt += r.Saves.Success
		slain += r.ModelsSlain
	}
	if Eliminated(after) {
		return fmt.Sprintf("%s lands %d unsaved wounds in %s, destroying %s.", from, dealt, kind, to)
	}
	return fmt.Sprintf("After %s %d %s remain, with %d wounds on the weakest one (%d slain).",
		kind, after.Models, to, after.Wounds, slain)
}

func (b *battle) chargeMessage(cr ChargeResult) string {
	switch {
	case cr.Charged:
		return fmt.Sprintf("%s charges with a roll of %d and engages %s.", b.att.Name, cr.Roll, b.def.Name)
	case cr.Engaged:
		return fmt.Sprintf("%s is already engaged.", b.att.Name)
	case cr.Roll > 0:
		return fmt.Sprintf("%s fails the charge with a roll of %d.", b.att.Name, cr.Roll)
	default:
		return fmt.Sprintf("%s is too far away to charge.", b.att.Name)
	}
}

// Package scenario runs battle scripts written in Lua.
//
// A script calls battle{...} once per battle:
//
//	battle {
//	  name = "swarmlord breaks the line",
//	  attacker = "swarmlord", defender = "prosecutors",
//	  distance = 24, seed = 7,
//	  dice = {6, 6, 5},          -- fixed rolls used first (single runs)
//	  runs = 1,                  -- more than one compares win rates
//	  battle_shock = false,
//	  expect = { winner = "attacker", min_rate = 0.6, max_rounds = 5 },
//	}
package scenario

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/pefman/w40k-combat/internal/combat"
)

// DefaultMinRate is the win rate a batch must reach when expect.min_rate is unset.
const DefaultMinRate = 0.5

// Scenario is the set of battles declared by one script.
type Scenario struct {
	Name    string
	Battles []Battle
}

// Battle is one battle{...} call.
type Battle struct {
	Name        string
	Attacker    string
	Defender    string
	Distance    int
	Seed        uint64
	Runs        int
	Dice        []int
	BattleShock bool
	Expect      Expect
}

// Expect holds the assertions of a battle. Nil or zero fields are not checked.
type Expect struct {
	Winner    *combat.Winner
	MinRate   float64
	MaxRounds int
}

// LoadFile runs the script at path and collects its battles.
func LoadFile(path string) (*Scenario, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return load(name, func(state *lua.State) error { return lua.LoadFile(state, path, "") })
}

// LoadString is LoadFile for an in-memory script.
func LoadString(name, src string) (*Scenario, error) {
	return load(name, func(state *lua.State) error { return lua.LoadString(state, src) })
}

func load(name string, chunk func(*lua.State) error) (*Scenario, error) {
	sc := &Scenario{Name: name}
	state := lua.NewState()
	lua.OpenLibraries(state)
	state.Register("battle", func(state *lua.State) int {
		lua.CheckType(state, 1, lua.TypeTable)
		b, err := decodeBattle(tableToMap(state, 1))
		if err != nil {
			lua.Errorf(state, "battle %d: %s", len(sc.Battles)+1, err.Error())
			return 0
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("battle %d", len(sc.Battles)+1)
		}
		sc.Battles = append(sc.Battles, b)
		return 0
	})

	if err := chunk(state); err != nil {
		return nil, fmt.Errorf("load lua: %w", stackError(state, err))
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", stackError(state, err))
	}
	if len(sc.Battles) == 0 {
		return nil, fmt.Errorf("scenario %s declares no battles", name)
	}
	return sc, nil
}

// stackError prefers the message Lua left on the stack over the bare status.
func stackError(state *lua.State, err error) error {
	if msg, ok := state.ToString(-1); ok && msg != "" {
		state.Pop(1)
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

func decodeBattle(m map[string]any) (Battle, error) {
	var b Battle
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := m[key]; ok {
			s, ok := v.(string)
			if !ok {
				errs = append(errs, fmt.Errorf("%s must be a string", key))
			}
			*dst = s
		}
	}
	num := func(src map[string]any, key string, dst *int) {
		if v, ok := src[key]; ok {
			n, ok := v.(int)
			if !ok {
				errs = append(errs, fmt.Errorf("%s must be an integer", key))
			}
			*dst = n
		}
	}

	str("name", &b.Name)
	str("attacker", &b.Attacker)
	str("defender", &b.Defender)
	num(m, "distance", &b.Distance)
	num(m, "runs", &b.Runs)
	var seed int
	num(m, "seed", &seed)
	if seed < 0 {
		errs = append(errs, errors.New("seed must not be negative"))
	}
	b.Seed = uint64(seed)
	if v, ok := m["battle_shock"]; ok {
		flag, ok := v.(bool)
		if !ok {
			errs = append(errs, errors.New("battle_shock must be a boolean"))
		}
		b.BattleShock = flag
	}
	if v, ok := m["dice"]; ok {
		list, ok := v.([]any)
		if !ok {
			errs = append(errs, errors.New("dice must be a list"))
		}
		for i, r := range list {
			n, ok := r.(int)
			if !ok || n < 1 || n > 6 {
				errs = append(errs, fmt.Errorf("dice[%d] must be 1-6, got %v", i+1, r))
				continue
			}
			b.Dice = append(b.Dice, n)
		}
	}
	if v, ok := m["expect"]; ok {
		exp, ok := v.(map[string]any)
		if !ok {
			errs = append(errs, errors.New("expect must be a table"))
		}
		if w, ok := exp["winner"]; ok {
			s, _ := w.(string)
			winner, err := combat.ParseWinner(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("expect.winner: %w", err))
			}
			b.Expect.Winner = &winner
		}
		if r, ok := exp["min_rate"]; ok {
			switch r := r.(type) {
			case int:
				b.Expect.MinRate = float64(r)
			case float64:
				b.Expect.MinRate = r
			default:
				errs = append(errs, errors.New("expect.min_rate must be a number"))
			}
		}
		num(exp, "max_rounds", &b.Expect.MaxRounds)
	}

	if b.Attacker == "" || b.Defender == "" {
		errs = append(errs, errors.New("attacker and defender are required"))
	}
	if b.Runs == 0 {
		b.Runs = 1
	}
	if b.Runs > 1 && b.Expect.MinRate == 0 {
		b.Expect.MinRate = DefaultMinRate
	}
	if b.Runs > 1 && len(b.Dice) > 0 {
		errs = append(errs, errors.New("dice can only be fixed for a single run"))
	}
	return b, errors.Join(errs...)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		if math.Mod(value, 1) == 0 {
			return int(value)
		}
		return value
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo returns a []any for sequences and a map otherwise.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	n := state.RawLength(index)
	if n == 0 {
		return tableToMap(state, index)
	}
	result := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		state.RawGetInt(index, i)
		result = append(result, luaToGo(state, -1))
		state.Pop(1)
	}
	return result
}

package dice

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidExpr is returned for dice expressions that cannot be parsed.
var ErrInvalidExpr = errors.New("invalid dice expression")

var exprRe = regexp.MustCompile(`(?i)^\s*(\d+)?\s*d\s*(\d+)(\s*([+\-x*])\s*(\d+))?\s*$`)

// Expr is a value that is either flat (4) or rolled (D6, 2D3, D6+3, D3x2).
// The zero value is a flat 0.
type Expr struct {
	Count int  // dice to roll; 0 means the expression is the flat value K
	Sides int  // 3 or 6
	Op    byte // '+', '-', 'x' or 0
	K     int
}

// Flat returns an expression that always evaluates to n.
func Flat(n int) Expr { return Expr{K: n} }

// ParseExpr supports N, NdM, NdM+K, NdM-K and NdM xK (or *K).
// Only D3 and D6 are accepted since every roll comes from a six-sided Source.
func ParseExpr(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Expr{}, fmt.Errorf("%w: empty", ErrInvalidExpr)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Expr{}, fmt.Errorf("%w: %q is negative", ErrInvalidExpr, s)
		}
		return Flat(n), nil
	}
	m := exprRe.FindStringSubmatch(s)
	if m == nil {
		return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, s)
	}
	e := Expr{Count: 1}
	if m[1] != "" {
		e.Count, _ = strconv.Atoi(m[1])
	}
	e.Sides, _ = strconv.Atoi(m[2])
	if e.Count < 1 {
		return Expr{}, fmt.Errorf("%w: %q rolls no dice", ErrInvalidExpr, s)
	}
	if e.Sides != 3 && e.Sides != 6 {
		return Expr{}, fmt.Errorf("%w: %q uses D%d", ErrInvalidExpr, s, e.Sides)
	}
	if m[3] != "" {
		switch op := m[4][0]; op {
		case '*', 'X':
			e.Op = 'x'
		default:
			e.Op = op
		}
		e.K, _ = strconv.Atoi(m[5])
	}
	return e, nil
}

// MustParseExpr is ParseExpr for literals known to be valid.
func MustParseExpr(s string) Expr {
	e, err := ParseExpr(s)
	if err != nil {
		panic(err)
	}
	return e
}

// IsFlat reports whether the expression needs no dice.
func (e Expr) IsFlat() bool { return e.Count == 0 }

// Roll evaluates the expression. Results never go below 0.
func (e Expr) Roll(src Source) int {
	if e.Count == 0 {
		return e.K
	}
	total := 0
	for range e.Count {
		if e.Sides == 3 {
			total += D3(src)
		} else {
			total += src.D6()
		}
	}
	switch e.Op {
	case '+':
		total += e.K
	case '-':
		total -= e.K
	case 'x':
		total *= e.K
	}
	if total < 0 {
		total = 0
	}
	return total
}

func (e Expr) String() string {
	if e.Count == 0 {
		return strconv.Itoa(e.K)
	}
	var b strings.Builder
	if e.Count > 1 {
		b.WriteString(strconv.Itoa(e.Count))
	}
	b.WriteString("D")
	b.WriteString(strconv.Itoa(e.Sides))
	if e.Op != 0 {
		b.WriteByte(e.Op)
		b.WriteString(strconv.Itoa(e.K))
	}
	return b.String()
}

func (e Expr) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Expr) UnmarshalText(text []byte) error {
	v, err := ParseExpr(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// UnmarshalJSON accepts both 4 and "D6+3".
func (e *Expr) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("%w: %d is negative", ErrInvalidExpr, n)
		}
		*e = Flat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidExpr, data)
	}
	return e.UnmarshalText([]byte(s))
}

// UnmarshalYAML accepts both 4 and D6+3.
func (e *Expr) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: want a scalar", ErrInvalidExpr, n.Line)
	}
	return e.UnmarshalText([]byte(n.Value))
}

// Package catalog loads unit stat blocks from YAML.
//
// A catalog document maps unit ids to definitions:
//
//	units:
//	  prosecutors:
//	    name: Prosecutors
//	    points: 140
//	    models: 3
//	    stats: {movement: 6, toughness: 3, save: 3, wounds: 1, leadership: 6}
//	    ranged:
//	      - {name: Boltgun, range: 24, attacks: 1, skill: 3, strength: 4, damage: 1}
//
// Every unit is validated on load.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pefman/w40k-combat/internal/combat"
)

//go:embed units.yaml
var defaultUnits []byte

// ErrUnknownUnit is returned by Unit for ids that are not in the catalog.
var ErrUnknownUnit = errors.New("unknown unit")

// Catalog is a read-only set of units keyed by id. Safe for concurrent use.
type Catalog struct {
	units map[string]combat.Unit
	ids   []string
}

type document struct {
	Units map[string]combat.Unit `yaml:"units"`
}

// Load decodes and validates a catalog document.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: empty document")
		}
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Units) == 0 {
		return nil, errors.New("catalog: no units defined")
	}

	c := &Catalog{units: doc.Units, ids: make([]string, 0, len(doc.Units))}
	var errs []error
	for id, u := range doc.Units {
		if id == "" {
			errs = append(errs, errors.New("empty unit id"))
			continue
		}
		if err := u.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("unit %s: %w", id, err))
			continue
		}
		c.ids = append(c.ids, id)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog: %w", errors.Join(errs...))
	}
	slices.Sort(c.ids)
	return c, nil
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(bytes.NewReader(defaultUnits))
})

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Open returns the catalog at path, or the built-in one when path is empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Unit returns a copy of the unit with the given id.
func (c *Catalog) Unit(id string) (combat.Unit, error) {
	u, ok := c.units[id]
	if !ok {
		return combat.Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	u.Weapons.Ranged = slices.Clone(u.Weapons.Ranged)
	u.Weapons.Melee = slices.Clone(u.Weapons.Melee)
	u.Tags = slices.Clone(u.Tags)
	return u, nil
}

// IDs returns every unit id in sorted order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

func (c *Catalog) Len() int { return len(c.ids) }

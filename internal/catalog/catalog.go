// Package catalog holds the static description of every matchable game mode.
// Modes are loaded once at startup (from the embedded defaults or a JSON file)
// and never change afterwards; every other package reads them by value.
package catalog

import (
	_ "embed"
	"encoding/json"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
)

//go:embed modes.json
var defaultModes []byte

// GameMode describes the constraints of one matchable mode.
type GameMode struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	TeamSize         int      `json:"team_size"` // 1 = solo
	MaxPlayers       int      `json:"max_players"`
	MinPlayers       int      `json:"min_players"`
	Ranked           bool     `json:"ranked"`
	MinLevel         int      `json:"min_level"`
	MinRating        *int     `json:"min_rating,omitempty"`
	MaxRating        *int     `json:"max_rating,omitempty"`
	Maps             []string `json:"maps"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	Respawn          bool     `json:"respawn"`
}

// IsSolo reports whether players compete individually.
func (m GameMode) IsSolo() bool {
	return m.TeamSize == 1
}

// NumTeams returns how many teams a full match of this mode has.
func (m GameMode) NumTeams() int {
	if m.TeamSize <= 0 {
		return 0
	}
	return m.MaxPlayers / m.TeamSize
}

// TimeLimit returns the match time limit as a duration.
func (m GameMode) TimeLimit() time.Duration {
	return time.Duration(m.TimeLimitSeconds) * time.Second
}

func (m GameMode) clone() GameMode {
	m.Maps = slices.Clone(m.Maps)
	if m.MinRating != nil {
		v := *m.MinRating
		m.MinRating = &v
	}
	if m.MaxRating != nil {
		v := *m.MaxRating
		m.MaxRating = &v
	}
	return m
}

func (m GameMode) validate() error {
	switch {
	case m.ID == "":
		return eris.New("mode id is empty")
	case m.TeamSize < 1:
		return eris.Errorf("mode %q: team_size must be >= 1", m.ID)
	case m.MaxPlayers < m.TeamSize:
		return eris.Errorf("mode %q: max_players must be >= team_size", m.ID)
	case m.MaxPlayers%m.TeamSize != 0:
		return eris.Errorf("mode %q: max_players must be a multiple of team_size", m.ID)
	case m.MinPlayers < 1 || m.MinPlayers > m.MaxPlayers:
		return eris.Errorf("mode %q: min_players must be within [1, max_players]", m.ID)
	case len(m.Maps) == 0:
		return eris.Errorf("mode %q: at least one map is required", m.ID)
	case m.MinRating != nil && m.MaxRating != nil && *m.MinRating > *m.MaxRating:
		return eris.Errorf("mode %q: min_rating exceeds max_rating", m.ID)
	}
	if !m.IsSolo() && m.NumTeams() < 2 {
		return eris.Errorf("mode %q: team modes need at least two teams", m.ID)
	}
	return nil
}

// Catalog is an immutable, ordered set of game modes.
type Catalog struct {
	order []string
	modes map[string]GameMode
}

// New validates modes and builds a catalog preserving their order.
func New(modes []GameMode) (*Catalog, error) {
	c := &Catalog{
		order: make([]string, 0, len(modes)),
		modes: make(map[string]GameMode, len(modes)),
	}
	for _, m := range modes {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.modes[m.ID]; dup {
			return nil, eris.Errorf("duplicate mode %q", m.ID)
		}
		c.order = append(c.order, m.ID)
		c.modes[m.ID] = m.clone()
	}
	return c, nil
}

// Load decodes a JSON array of modes.
func Load(r io.Reader) (*Catalog, error) {
	var modes []GameMode
	if err := json.NewDecoder(r).Decode(&modes); err != nil {
		return nil, eris.Wrap(err, "failed to decode game modes")
	}
	return New(modes)
}

// LoadFile reads modes from path. An empty path yields the built-in defaults.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open modes file %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	var modes []GameMode
	if err := json.Unmarshal(defaultModes, &modes); err != nil {
		return nil, eris.Wrap(err, "failed to decode embedded game modes")
	}
	return New(modes)
}

// Get returns the mode with the given id.
func (c *Catalog) Get(id string) (GameMode, bool) {
	m, ok := c.modes[id]
	if !ok {
		return GameMode{}, false
	}
	return m.clone(), true
}

// Modes returns every mode in load order.
func (c *Catalog) Modes() []GameMode {
	out := make([]GameMode, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.modes[id].clone())
	}
	return out
}

// IDs returns mode ids in load order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.order)
}

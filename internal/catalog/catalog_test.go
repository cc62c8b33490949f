package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"ranked-solo", "duel", "casual", "ranked-team"}, c.IDs())

	solo, ok := c.Get("ranked-solo")
	require.True(t, ok)
	assert.True(t, solo.IsSolo())
	assert.Equal(t, 10, solo.MaxPlayers)
	assert.Equal(t, 20, solo.MinLevel)
	assert.Nil(t, solo.MinRating)

	casual, ok := c.Get("casual")
	require.True(t, ok)
	assert.False(t, casual.IsSolo())
	assert.Equal(t, 2, casual.NumTeams())

	team, ok := c.Get("ranked-team")
	require.True(t, ok)
	require.NotNil(t, team.MinRating)
	assert.Equal(t, 1200, *team.MinRating)
}

func TestGet_Unknown(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, ok := c.Get("battle-royale")
	assert.False(t, ok)
}

func TestGet_ReturnsCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	m, _ := c.Get("casual")
	m.Maps[0] = "mutated"

	again, _ := c.Get("casual")
	assert.Equal(t, "harbor", again.Maps[0])
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "empty id",
			json: `[{"team_size":1,"max_players":2,"min_players":2,"maps":["a"]}]`,
			want: "mode id is empty",
		},
		{
			name: "uneven teams",
			json: `[{"id":"x","team_size":3,"max_players":10,"min_players":10,"maps":["a"]}]`,
			want: "multiple of team_size",
		},
		{
			name: "no maps",
			json: `[{"id":"x","team_size":1,"max_players":2,"min_players":2}]`,
			want: "at least one map",
		},
		{
			name: "single team",
			json: `[{"id":"x","team_size":5,"max_players":5,"min_players":5,"maps":["a"]}]`,
			want: "at least two teams",
		},
		{
			name: "duplicate",
			json: `[{"id":"x","team_size":1,"max_players":2,"min_players":2,"maps":["a"]},
			        {"id":"x","team_size":1,"max_players":2,"min_players":2,"maps":["a"]}]`,
			want: "duplicate mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.json")
	data := `[{"id":"trio","name":"Trios","team_size":3,"max_players":6,"min_players":6,"maps":["m1"],"time_limit_seconds":90}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	m, ok := c.Get("trio")
	require.True(t, ok)
	assert.Equal(t, 2, m.NumTeams())
	assert.Equal(t, "1m30s", m.TimeLimit().String())
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.Modes(), 4)
}

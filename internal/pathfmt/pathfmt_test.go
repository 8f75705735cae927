package pathfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no variables", "/saves/foo.sav", "/saves/foo.sav"},
		{"variable after literal", "/saves/$ROM/$NAME.$EXT", "/saves/"},
		{"leading variable", "$ROM/$NAME", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.src).Prefix())
		})
	}
}

func TestVariables(t *testing.T) {
	f := New("/saves/$ROM/$NAME.$EXT-$ROM")
	assert.Equal(t, []string{"ROM", "NAME", "EXT"}, f.Variables())
}

func TestResolveSimple(t *testing.T) {
	f := New("/saves/$ROM/$NAME.$EXT")
	vars, err := f.Resolve("/saves/zelda/slot1.sav")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ROM": "zelda", "NAME": "slot1", "EXT": "sav"}, vars)
}

func TestResolveExtraLeadingComponents(t *testing.T) {
	f := New("$ROM/$NAME.$EXT")
	vars, err := f.Resolve("/mnt/sd/saves/zelda/slot1.sav")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ROM": "zelda", "NAME": "slot1", "EXT": "sav"}, vars)
	// The leading components are ignored; NAME.EXT is a single component
	// "slot1.sav" and EXT consumes the remainder after the literal ".".
	assert.Equal(t, "sav", vars["EXT"])
}

func TestResolveMismatch(t *testing.T) {
	f := New("/saves/$ROM/fixed.sav")
	_, err := f.Resolve("/saves/zelda/other.sav")
	require.Error(t, err)
}

func TestResolveComponentFormat(t *testing.T) {
	f := New("/saves/$ROM-save.$EXT")
	_, err := f.Resolve("/saves/zelda.sav")
	require.Error(t, err)
}

func TestMatches(t *testing.T) {
	f := New("/saves/$ROM/$NAME.$EXT")
	assert.True(t, f.Matches("/saves/zelda/slot1.sav"))
	assert.False(t, f.Matches("/other/zelda/slot1.sav"))
}

func TestBuildWithVarsRoundTrip(t *testing.T) {
	f := New("/saves/$ROM/$NAME.$EXT")
	vars := map[string]string{"ROM": "zelda", "NAME": "slot1", "EXT": "sav"}
	path := f.BuildWithVars(vars)
	assert.Equal(t, "/saves/zelda/slot1.sav", path)

	got, err := f.Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, vars, got)
}

func TestBuildWithVarsMissingPassesThroughLiterally(t *testing.T) {
	f := New("/saves/$ROM/$NAME.$EXT")
	got := f.BuildWithVars(map[string]string{"ROM": "zelda"})
	assert.Equal(t, "/saves/zelda/$NAME.$EXT", got)
}

func TestResolveTrailingSlashTemplate(t *testing.T) {
	f := New("/saves/$ROM/")
	vars, err := f.Resolve("/saves/zelda/")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ROM": "zelda"}, vars)
}

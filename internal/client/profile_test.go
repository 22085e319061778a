package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfileMissing(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)
}

func TestProfileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")
	p := DefaultProfile()
	p.HubURL = "ws://lane-2:5002/socket"
	p.Config.Detection.ZoneStart = 55
	require.NoError(t, p.Save(path))

	got, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestLoadProfilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config:\n  visual:\n    boxColor: \"#0000ff\"\n"), 0o644))
	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultHubURL, p.HubURL)
	assert.Equal(t, "#0000ff", p.Config.Visual.BoxColor)
	assert.Equal(t, 70, p.Config.Detection.ZoneStart)
}

func TestLoadProfileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hub_url: [\n"), 0o644))
	_, err := LoadProfile(path)
	assert.Error(t, err)
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

func TestNormalizeCrewID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"demo", "demo"},
		{"  demo  ", "demo"},
		{"my-crew", "my_crew"},
		{"my.crew", "my_crew"},
		{"_private", "_private"},
		{"Crew42", "Crew42"},
	}
	for _, tc := range cases {
		got, err := NormalizeCrewID(tc.raw)
		require.NoError(t, err, "raw %q", tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizeCrewIDRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "1crew", "-starts-with-dash", "has space", "has/slash"} {
		_, err := NormalizeCrewID(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

// writeCrew lays out crews/<id>/src/<pkg>/main.py plus optional extras.
func writeCrew(t *testing.T, root, id, pkg string, withMain bool) string {
	t.Helper()
	pkgDir := filepath.Join(root, id, "src", pkg)
	require.NoError(t, os.MkdirAll(filepath.Join(pkgDir, "config"), 0o755))
	if withMain {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "main.py"), []byte("print('hi')\n"), 0o644))
	}
	return pkgDir
}

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	return s, root
}

func TestResolveExistingConfigDirPrefersIDPackage(t *testing.T) {
	s, root := newTestStorage(t)
	writeCrew(t, root, "demo", "other", true)
	preferred := writeCrew(t, root, "demo", "demo", true)

	crewDir, pkgDir, configDir, err := s.ResolveExistingConfigDir("demo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "demo"), crewDir)
	assert.Equal(t, preferred, pkgDir)
	assert.Equal(t, filepath.Join(preferred, "config"), configDir)
}

func TestResolveExistingConfigDirSinglePackageFallback(t *testing.T) {
	s, root := newTestStorage(t)
	pkgDir := writeCrew(t, root, "demo", "demo_pkg", true)

	_, got, _, err := s.ResolveExistingConfigDir("demo")
	require.NoError(t, err)
	assert.Equal(t, pkgDir, got)
}

func TestResolveExistingConfigDirErrors(t *testing.T) {
	s, root := newTestStorage(t)

	_, _, _, err := s.ResolveExistingConfigDir("missing")
	assert.ErrorContains(t, err, "does not exist")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "nosrc"), 0o755))
	_, _, _, err = s.ResolveExistingConfigDir("nosrc")
	assert.ErrorContains(t, err, "missing src directory")

	writeCrew(t, root, "ambiguous", "pkg_a", true)
	writeCrew(t, root, "ambiguous", "pkg_b", true)
	_, _, _, err = s.ResolveExistingConfigDir("ambiguous")
	assert.ErrorContains(t, err, "exactly one package directory")
}

func TestResolveCrewDirToleratesDashedDirName(t *testing.T) {
	s, root := newTestStorage(t)
	writeCrew(t, root, "my-crew", "my_crew", true)

	normalized, crewDir, err := s.ResolveCrewDir("my-crew")
	require.NoError(t, err)
	assert.Equal(t, "my_crew", normalized)
	assert.Equal(t, filepath.Join(root, "my-crew"), crewDir)
}

func TestEnvFileValues(t *testing.T) {
	s, root := newTestStorage(t)
	crewDir := filepath.Join(root, "demo")
	require.NoError(t, os.MkdirAll(crewDir, 0o755))

	values, err := s.EnvFileValues(crewDir)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, os.WriteFile(filepath.Join(crewDir, ".env"), []byte("API_KEY=secret\nMODEL=gpt-4o\n"), 0o644))
	values, err = s.EnvFileValues(crewDir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "secret", "MODEL": "gpt-4o"}, values)
}

func TestListCrews(t *testing.T) {
	s, root := newTestStorage(t)
	writeCrew(t, root, "beta", "beta", true)
	alphaPkg := writeCrew(t, root, "alpha", "alpha", true)
	writeCrew(t, root, "broken", "broken", false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	require.NoError(t, os.WriteFile(
		filepath.Join(alphaPkg, "config", "crew.json"),
		[]byte(`{"name": "Alpha Crew"}`), 0o644,
	))

	crews := s.ListCrews(map[string]bool{"beta": true})
	require.Len(t, crews, 2)
	assert.Equal(t, "alpha", crews[0].ID)
	assert.Equal(t, "Alpha Crew", crews[0].Name)
	assert.Equal(t, domain.CrewStatusReady, crews[0].Status)
	assert.Equal(t, "beta", crews[1].ID)
	assert.Equal(t, "beta", crews[1].Name)
	assert.Equal(t, domain.CrewStatusRunning, crews[1].Status)
}

func TestLoadCrew(t *testing.T) {
	s, root := newTestStorage(t)
	writeCrew(t, root, "demo", "demo", true)

	crew, err := s.LoadCrew("demo", nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", crew.ID)
	assert.Equal(t, domain.CrewStatusReady, crew.Status)

	_, err = s.LoadCrew("absent", nil)
	assert.Error(t, err)
}

func TestCrewNameFallsBackOnInvalidJSON(t *testing.T) {
	s, root := newTestStorage(t)
	pkgDir := writeCrew(t, root, "demo", "demo", true)
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "config", "crew.json"), []byte("{not json"), 0o644))

	crews := s.ListCrews(nil)
	require.Len(t, crews, 1)
	assert.Equal(t, "demo", crews[0].Name)
}

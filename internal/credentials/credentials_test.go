package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func noEnv(string) string { return "" }

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), ".easydeploy")
	opts = append([]Option{WithFile(path), WithGetenv(noEnv)}, opts...)
	return NewStore("http://localhost:8000/api/v1", opts...), path
}

func TestLookup_NothingConfigured(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Lookup()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestLookup_EnvironmentWins(t *testing.T) {
	s, _ := newTestStore(t, WithGetenv(func(k string) string {
		if k == EnvVar {
			return " env-key "
		}
		return ""
	}))
	_, err := s.Save("stored-key")
	require.NoError(t, err)

	key, src, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
	assert.Equal(t, SourceEnv, src)
}

func TestSaveLookupDelete_Keyring(t *testing.T) {
	s, path := newTestStore(t)

	src, err := s.Save("ed_secret")
	require.NoError(t, err)
	assert.Equal(t, SourceKeyring, src)
	assert.NoFileExists(t, path)

	key, src, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "ed_secret", key)
	assert.Equal(t, SourceKeyring, src)

	require.NoError(t, s.Delete())
	_, _, err = s.Lookup()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestKeyringIsPerBaseURL(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	a := NewStore("http://a.example.com", WithFile(filepath.Join(dir, "a")), WithGetenv(noEnv))
	b := NewStore("http://b.example.com", WithFile(filepath.Join(dir, "b")), WithGetenv(noEnv))

	_, err := a.Save("key-a")
	require.NoError(t, err)

	_, _, err = b.Lookup()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestSave_FallsBackToFile(t *testing.T) {
	s, path := newTestStore(t)
	keyring.MockInitWithError(errors.New("no keyring daemon"))

	src, err := s.Save("ed_secret")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, src)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	key, src, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "ed_secret", key)
	assert.Equal(t, SourceFile, src)
}

func TestLookup_LegacyFile(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key": "legacy-key"}`), 0o600))

	key, src, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", key)
	assert.Equal(t, SourceFile, src)
}

func TestLookup_MalformedFile(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, _, err := s.Lookup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestSave_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Save("   ")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********cdef", Mask("ed_abcdef"))
	assert.Equal(t, "***", Mask("abc"))
}

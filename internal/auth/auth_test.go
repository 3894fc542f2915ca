package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-from-env")

	key, err := GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "test-key-from-env", key)
}

func TestGetAPIKeyFromFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	credDir := filepath.Join(home, credentialDir)
	require.NoError(t, os.MkdirAll(credDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(credDir, credentialFile), []byte("file-key\n"), 0600))

	key, err := GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key, "trailing whitespace is trimmed")
}

func TestGetAPIKeyRejectsInsecureFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	credDir := filepath.Join(home, credentialDir)
	require.NoError(t, os.MkdirAll(credDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(credDir, credentialFile), []byte("leaky-key"), 0644))

	_, err := GetAPIKey()
	assert.Error(t, err)
}

func TestGetAPIKeyMissingEverywhere(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	_, err := GetAPIKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

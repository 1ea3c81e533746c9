package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsAndResolvesPaths(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfigFile(t, tmp, `
wikiSpaceId: "space123"
tokenPath: "`+tmp+`/token"
sync:
  folderPath: "`+tmp+`/notes"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "space123", cfg.WikiSpaceID)
	assert.True(t, filepath.IsAbs(cfg.TokenPath))
	assert.True(t, filepath.IsAbs(cfg.Sync.FolderPath))
	assert.Equal(t, DefaultPollInterval, cfg.Sync.PollIntervalSeconds)
	assert.True(t, cfg.Sync.InitialSync)
	assert.True(t, cfg.Sync.DeleteRemoteOnLocalMissing)
}

func TestLoad_MissingWikiSpaceId_Fails(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfigFile(t, tmp, `
tokenPath: "`+tmp+`/token"
sync:
  folderPath: "`+tmp+`/notes"
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "wikiSpaceId")
}

func TestLoad_MissingFolderPath_Fails(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfigFile(t, tmp, `
wikiSpaceId: "space123"
tokenPath: "`+tmp+`/token"
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "folderPath")
}

func TestLoad_EnvOverridesAuthCredentials(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfigFile(t, tmp, `
wikiSpaceId: "space123"
tokenPath: "`+tmp+`/token"
sync:
  folderPath: "`+tmp+`/notes"
`)

	t.Setenv("FEISHU_APP_ID", "app-from-env")
	t.Setenv("FEISHU_APP_SECRET", "secret-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "app-from-env", cfg.Auth.ClientID)
	assert.Equal(t, "secret-from-env", cfg.Auth.ClientSecret)
}

func TestConfig_ReadToken_TrimsWhitespace(t *testing.T) {
	tmp := t.TempDir()
	tokenPath := filepath.Join(tmp, "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("  abc123\n"), 0o644))

	cfg := &Config{TokenPath: tokenPath}
	token, err := cfg.ReadToken()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestConfig_PollIntervalDisabled_AllowsZero(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfigFile(t, tmp, `
wikiSpaceId: "space123"
tokenPath: "`+tmp+`/token"
sync:
  folderPath: "`+tmp+`/notes"
  pollIntervalSeconds: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Sync.PollIntervalSeconds)
}

package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Port    int      `json:"port"`
	Targets []string `json:"targets"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	require.NoError(t, err)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("conf", "config.local.json5"), LocalPath(filepath.Join("conf", "config.json5")))
	require.Equal(t, filepath.Join(".", "config.local"), LocalPath("config"))
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		name: "default",
		port: 465,
		targets: ["a@example.com"],
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ name: "local" }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Name:    "local",
		Port:    465,
		Targets: []string{"a@example.com"},
	}, cfg)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ port: 25 }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Port)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{ port: `)

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestEnvString(t *testing.T) {
	value := "from-config"

	t.Setenv("GKCX_TEST_VALUE", "  ")
	EnvString(&value, "GKCX_TEST_VALUE")
	require.Equal(t, "from-config", value)

	t.Setenv("GKCX_TEST_VALUE", "from-env")
	EnvString(&value, "GKCX_TEST_VALUE")
	require.Equal(t, "from-env", value)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotenv(dir))

	writeFile(t, filepath.Join(dir, ".env"), "GKCX_DOTENV_PROBE=loaded\n")
	require.NoError(t, LoadDotenv(dir))
	t.Cleanup(func() { os.Unsetenv("GKCX_DOTENV_PROBE") })
	require.Equal(t, "loaded", os.Getenv("GKCX_DOTENV_PROBE"))
}

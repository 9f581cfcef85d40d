package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/hotpotato/internal/apperr"
)

var configVars = []string{
	"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_BUCKET",
	"VISION_PROVIDER", "OPENROUTER_API_KEY", "OPENROUTER_MODEL", "OPENROUTER_BASE_URL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"IMAGE_SOURCE", "IMAGE_BASE_URL", "HOTPOTATO_DB_PATH", "HOTPOTATO_TOKEN_KEY",
	"HOTPOTATO_RUN_LOG_DIR", "LOG_LEVEL",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenRouter, cfg.VisionProvider)
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", cfg.OpenRouterModel)
	assert.Equal(t, "listings", cfg.Bucket)
	assert.True(t, filepath.IsAbs(cfg.DBPath))
	assert.Equal(t, DBFileName, filepath.Base(cfg.DBPath))
	assert.Equal(t, AppName, filepath.Base(filepath.Dir(cfg.DBPath)))
	assert.Equal(t, "auto", cfg.ImageSource)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.PersistSessions())
}

func TestLoadDBPathOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOTPOTATO_DB_PATH", "data/listings.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/listings.db", cfg.DBPath)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", " https://proj.supabase.co/ ")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("VISION_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("HOTPOTATO_TOKEN_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, ProviderGemini, cfg.VisionProvider)
	assert.Equal(t, "g-key", cfg.GeminiAPIKey)
	assert.True(t, cfg.PersistSessions())
	assert.NoError(t, cfg.Validate())
}

func TestMissing(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "nothing set",
			cfg:  Config{VisionProvider: ProviderOpenRouter},
			want: []string{"SUPABASE_URL", "SUPABASE_ANON_KEY", "OPENROUTER_API_KEY"},
		},
		{
			name: "gemini needs its own key",
			cfg:  Config{VisionProvider: ProviderGemini, SupabaseURL: "u", SupabaseAnonKey: "k", OpenRouterAPIKey: "x"},
			want: []string{"GEMINI_API_KEY"},
		},
		{
			name: "openai",
			cfg:  Config{VisionProvider: ProviderOpenAI, SupabaseURL: "u", SupabaseAnonKey: "k"},
			want: []string{"OPENAI_API_KEY"},
		},
		{
			name: "complete",
			cfg:  Config{VisionProvider: ProviderOpenRouter, SupabaseURL: "u", SupabaseAnonKey: "k", OpenRouterAPIKey: "x"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Missing())
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{VisionProvider: ProviderOpenRouter, SupabaseURL: "u"}
	err := cfg.Validate()
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	assert.Equal(t, "missing required config: SUPABASE_ANON_KEY, OPENROUTER_API_KEY", apperr.Message(err))

	cfg = Config{VisionProvider: "claude", SupabaseURL: "u", SupabaseAnonKey: "k"}
	err = cfg.Validate()
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), `unknown vision provider "claude"`)
}

func TestWriteEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), EnvFileName)
	values := map[string]string{
		"HOTPOTATO_TOKEN_KEY": "k=v",
		"SUPABASE_URL":        "https://proj.supabase.co",
		"OPENROUTER_API_KEY":  "sk-or-1",
		"EXTRA":               "x",
	}
	require.NoError(t, WriteEnvFile(path, values))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SUPABASE_URL="))
	assert.True(t, strings.HasPrefix(lines[1], "OPENROUTER_API_KEY="))
	assert.True(t, strings.HasPrefix(lines[2], "HOTPOTATO_TOKEN_KEY="))
	assert.Equal(t, `EXTRA="x"`, lines[3])

	parsed, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, values, parsed)
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SUPABASE_ANON_KEY", "from-env")

	path, err := FilePath()
	require.NoError(t, err)
	require.NoError(t, WriteEnvFile(path, map[string]string{
		"SUPABASE_URL":      "https://file.supabase.co",
		"SUPABASE_ANON_KEY": "from-file",
	}))

	LoadEnvFile()
	t.Cleanup(func() { os.Unsetenv("SUPABASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://file.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "from-env", cfg.SupabaseAnonKey)
}

func TestGenerateTokenKey(t *testing.T) {
	a, b := GenerateTokenKey(), GenerateTokenKey()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44)
}

func TestProviderKeyVar(t *testing.T) {
	assert.Equal(t, "OPENROUTER_API_KEY", providerKeyVar(ProviderOpenRouter))
	assert.Equal(t, "GEMINI_API_KEY", providerKeyVar(ProviderGemini))
	assert.Equal(t, "OPENAI_API_KEY", providerKeyVar(ProviderOpenAI))
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// setupEnv points HOME at a temp dir and sets the minimum required secrets.
func setupEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JWT_SECRET", "jwt-test-secret")
	t.Setenv("OPENROUTER_ENCRYPTION_KEY", testEncryptionKey)
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("VECTORSTORE_PROVIDER", "")
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "worken")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	setupEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "moonshotai/kimi-k2.5", cfg.OpenRouter.ChatModel)
	assert.Equal(t, "arcee-ai/trinity-large-preview:free", cfg.OpenRouter.TitleModel)
	assert.Equal(t, "stepfun/step-3.5-flash:free", cfg.OpenRouter.JudgeModel)
	assert.Equal(t, float64(10), cfg.OpenRouter.KeyCreditLimit)
	assert.Equal(t, "WorkenAI", cfg.Site.Name)
	assert.Equal(t, "http://localhost:3000", cfg.Frontend.URL)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.Dimension)
	assert.Equal(t, "worken", cfg.Observability.ServiceName)
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	home := setupEnv(t)
	path := writeConfig(t, home, `server:
  http_port: 9090
  shutdown_timeout: 30s
site:
  name: yaml-site
embeddings:
  provider: tei
  base_url: http://tei:8080
observability:
  export_interval: 5s
`, 0600)

	t.Setenv("SITE_NAME", "env-site")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-fallback")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "env-site", cfg.Site.Name, "env should override yaml")
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "http://tei:8080", cfg.Embeddings.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Observability.ExportInterval.Duration())
	assert.Equal(t, "sk-or-fallback", cfg.OpenRouter.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.OpenRouter.APIKey.String())
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	home := setupEnv(t)
	path := writeConfig(t, home, "server:\n  http_port: 9090\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{"JWT_SECRET": ""},
			wantErr: "jwt.secret is required",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"OPENROUTER_ENCRYPTION_KEY": "abcd"},
			wantErr: "must be exactly 64 hex characters (32 bytes)",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"DATABASE_DRIVER": "postgres"},
			wantErr: "database.url is required",
		},
		{
			name:    "pgvector without postgres",
			env:     map[string]string{"VECTORSTORE_PROVIDER": "pgvector"},
			wantErr: "requires database.driver postgres",
		},
		{
			name:    "unknown embeddings provider",
			env:     map[string]string{"EMBEDDINGS_PROVIDER": "openai"},
			wantErr: "unknown embeddings.provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"OPENROUTER_API_KEY":          "openrouter.api_key",
		"OPENROUTER_PROVISIONING_KEY": "openrouter.provisioning_key",
		"DATABASE_URL":                "database.url",
		"SERVER_HTTP_PORT":            "server.http_port",
		"HOME":                        "home",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidateEncryptionKey(t *testing.T) {
	assert.NoError(t, ValidateEncryptionKey(testEncryptionKey))
	assert.Error(t, ValidateEncryptionKey(strings.Repeat("z", 64)))
	assert.Error(t, ValidateEncryptionKey(testEncryptionKey[:62]))
}

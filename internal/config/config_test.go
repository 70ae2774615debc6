package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment needed for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SEATSYNC_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SEATSYNC_PADDLE_PUBLIC_KEY", "-----BEGIN PUBLIC KEY-----\nMFw=\n-----END PUBLIC KEY-----")
	t.Setenv("SEATSYNC_PADDLE_VENDOR_ID", "12345")
	t.Setenv("SEATSYNC_PADDLE_API_KEY", "paddle-auth-code")
	t.Setenv("SEATSYNC_PADDLE_PLAN_ID", "559")
	t.Setenv("SEATSYNC_KEYGEN_ACCOUNT_ID", "acct-1")
	t.Setenv("SEATSYNC_KEYGEN_PRODUCT_TOKEN", "prod-xyz")
	t.Setenv("SEATSYNC_KEYGEN_POLICY_ID", "policy-1")
}

func TestLoad_FromEnvironment(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "12345", cfg.Paddle.VendorID)
	assert.Equal(t, "paddle-auth-code", cfg.Paddle.APIKey)
	assert.Equal(t, "559", cfg.Paddle.PlanID)
	assert.Equal(t, "acct-1", cfg.Keygen.AccountID)
	assert.Equal(t, "prod-xyz", cfg.Keygen.ProductToken)
	assert.Equal(t, "policy-1", cfg.Keygen.PolicyID)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://vendors.paddle.com/api/2.0", cfg.Paddle.VendorsURL)
	assert.Equal(t, "https://api.keygen.sh/v1", cfg.Keygen.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Keygen.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Server.RateLimit.Enabled)
}

func TestLoad_MissingCredentialsFails(t *testing.T) {
	required := []string{
		"SEATSYNC_PADDLE_PUBLIC_KEY",
		"SEATSYNC_PADDLE_VENDOR_ID",
		"SEATSYNC_PADDLE_API_KEY",
		"SEATSYNC_PADDLE_PLAN_ID",
		"SEATSYNC_KEYGEN_ACCOUNT_ID",
		"SEATSYNC_KEYGEN_PRODUCT_TOKEN",
		"SEATSYNC_KEYGEN_POLICY_ID",
	}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEATSYNC_LOGGING_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_FileFillsMissingFields(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEATSYNC_KEYGEN_POLICY_ID", "")

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	body := []byte("keygen:\n  policy_id: policy-from-file\n")
	require.NoError(t, os.WriteFile(file, body, 0o600))
	t.Setenv("SEATSYNC_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "policy-from-file", cfg.Keygen.PolicyID)
}

func TestLoad_EnvTakesPrecedenceOverFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	body := []byte("keygen:\n  policy_id: policy-from-file\n")
	require.NoError(t, os.WriteFile(file, body, 0o600))
	t.Setenv("SEATSYNC_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "policy-1", cfg.Keygen.PolicyID)
}

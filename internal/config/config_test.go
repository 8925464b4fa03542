package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "policy.yaml", cfg.PolicyPath)
	assert.Equal(t, 30*24*time.Hour, cfg.EASWindow)
	assert.Equal(t, 24*time.Hour, cfg.EscalationTTL)
	assert.Empty(t, cfg.WebhookURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SNA_PORT", "9090")
	t.Setenv("SNA_EAS_WINDOW", "168h")
	t.Setenv("SNA_ESCALATION_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.EASWindow)
	assert.Equal(t, time.Hour, cfg.EscalationTTL)
}

func TestValidate_RejectsUnsafeWebhookURL(t *testing.T) {
	t.Setenv("SNA_WEBHOOK_URL", "http://hooks.example.com/sna")

	_, err := Load()
	require.Error(t, err, "plain http webhook must refuse startup")
	assert.Contains(t, err.Error(), "SNA_WEBHOOK_URL rejected")

	t.Setenv("SNA_WEBHOOK_URL", "https://127.0.0.1/sna")
	_, err = Load()
	require.Error(t, err, "loopback webhook must refuse startup")
}

func TestValidate_RequiredFields(t *testing.T) {
	assert.Error(t, Config{PolicyPath: "p", EASWindow: 1, EscalationTTL: 1, MaxRequestBodyBytes: 1}.Validate())
	assert.Error(t, Config{DatabaseURL: "d", EASWindow: 1, EscalationTTL: 1, MaxRequestBodyBytes: 1}.Validate())
	assert.Error(t, Config{DatabaseURL: "d", PolicyPath: "p", EscalationTTL: 1, MaxRequestBodyBytes: 1}.Validate())
}

package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateAppliesDefaults(test *testing.T) {
	cfg := Config{SessionSigningKey: "key", WebhookSecret: "secret"}
	require.NoError(test, cfg.Validate())
	assert.Equal(test, ":8080", cfg.ListenAddr)
	assert.Equal(test, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(test, "tauth", cfg.SessionIssuer)
	assert.Equal(test, "app_session", cfg.SessionCookieName)
	assert.Equal(test, "admin", cfg.AdminRole)
	assert.Equal(test, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(test, 50, cfg.ListLimit)
}

func TestConfigValidateRequiresSecrets(test *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "signing key", cfg: Config{WebhookSecret: "secret"}, want: "session signing key is required"},
		{name: "webhook secret", cfg: Config{SessionSigningKey: "key", WebhookSecret: "  "}, want: "webhook secret is required"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			err := testCase.cfg.Validate()
			require.Error(test, err)
			assert.Contains(test, err.Error(), testCase.want)
		})
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	assert.Equal(test, []string{}, ParseAllowedOrigins("  "))
	assert.Equal(test, []string{"http://a.test", "http://b.test"}, ParseAllowedOrigins(" http://a.test, ,http://b.test "))
}

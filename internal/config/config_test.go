package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CAMPUS_JWT_SECRET", "secret")
	t.Setenv("CAMPUS_MESSAGE_KEY_PASSPHRASE", "passphrase")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Campus Connect API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "redis", cfg.RealtimeTransport)
	require.Equal(t, 10*time.Second, cfg.ChatWatchdogTimeout)
	require.Equal(t, 3*time.Second, cfg.TypingTimeout)
	require.Equal(t, 24*time.Hour, cfg.DisappearingTTL)
	require.Equal(t, "campusconnect", cfg.DeepLinkScheme)
	require.Equal(t, 5, cfg.AvatarMaxSizeMB)
	require.Equal(t, "*", cfg.CORSAllowOrigins)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("CAMPUS_JWT_SECRET", "")
	t.Setenv("CAMPUS_MESSAGE_KEY_PASSPHRASE", "passphrase")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CAMPUS_JWT_SECRET", "secret")
	t.Setenv("CAMPUS_MESSAGE_KEY_PASSPHRASE", "")

	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	t.Setenv("CAMPUS_JWT_SECRET", "secret")
	t.Setenv("CAMPUS_MESSAGE_KEY_PASSPHRASE", "passphrase")
	t.Setenv("CAMPUS_CHAT_WATCHDOG_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "chat.watchdog_timeout")
}

func TestLoadNATSTransportNeedsURL(t *testing.T) {
	t.Setenv("CAMPUS_JWT_SECRET", "secret")
	t.Setenv("CAMPUS_MESSAGE_KEY_PASSPHRASE", "passphrase")
	t.Setenv("CAMPUS_REALTIME_TRANSPORT", "nats")
	t.Setenv("CAMPUS_NATS_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CAMPUS_NATS_URL", "nats://localhost:4222")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "nats", cfg.RealtimeTransport)
}

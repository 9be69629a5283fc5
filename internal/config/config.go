package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	RealtimeTransport      string
	ChannelBase            string
	JWTSecret              string
	MessageKeyPassphrase   string
	MessageKeySalt         string
	ChatWatchdogTimeout    time.Duration
	TypingTimeout          time.Duration
	DisappearingTTL        time.Duration
	ExpirySweepInterval    time.Duration
	PresenceTTL            time.Duration
	ReconcileInterval      time.Duration
	ExpoPushURL            string
	ExpoAccessToken        string
	DeepLinkScheme         string
	DeepLinkWebHost        string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	AvatarMaxSizeMB        int
	NotificationKeepAlive  time.Duration
	CORSAllowOrigins       string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CAMPUS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Campus Connect API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.transport", "redis")
	v.SetDefault("realtime.channel_base", "campus")
	v.SetDefault("message.key_salt", "campus-connect/chat/v1")
	v.SetDefault("chat.watchdog_timeout", "10s")
	v.SetDefault("chat.typing_timeout", "3s")
	v.SetDefault("chat.disappearing_ttl", "24h")
	v.SetDefault("chat.expiry_sweep_interval", "1m")
	v.SetDefault("presence.ttl", "90s")
	v.SetDefault("groups.reconcile_interval", "15m")
	v.SetDefault("expo.push_url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("deeplink.scheme", "campusconnect")
	v.SetDefault("cloudinary.folder", "campus/avatars")
	v.SetDefault("avatar.max_size_mb", 5)
	v.SetDefault("notifications.keep_alive", "30s")
	v.SetDefault("cors.allow_origins", "*")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"chat.watchdog_timeout",
		"chat.typing_timeout",
		"chat.disappearing_ttl",
		"chat.expiry_sweep_interval",
		"presence.ttl",
		"groups.reconcile_interval",
		"notifications.keep_alive",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeTransport:      strings.ToLower(strings.TrimSpace(v.GetString("realtime.transport"))),
		ChannelBase:            v.GetString("realtime.channel_base"),
		JWTSecret:              v.GetString("jwt.secret"),
		MessageKeyPassphrase:   v.GetString("message.key_passphrase"),
		MessageKeySalt:         v.GetString("message.key_salt"),
		ChatWatchdogTimeout:    durations["chat.watchdog_timeout"],
		TypingTimeout:          durations["chat.typing_timeout"],
		DisappearingTTL:        durations["chat.disappearing_ttl"],
		ExpirySweepInterval:    durations["chat.expiry_sweep_interval"],
		PresenceTTL:            durations["presence.ttl"],
		ReconcileInterval:      durations["groups.reconcile_interval"],
		ExpoPushURL:            v.GetString("expo.push_url"),
		ExpoAccessToken:        v.GetString("expo.access_token"),
		DeepLinkScheme:         v.GetString("deeplink.scheme"),
		DeepLinkWebHost:        v.GetString("deeplink.web_host"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		AvatarMaxSizeMB:        v.GetInt("avatar.max_size_mb"),
		NotificationKeepAlive:  durations["notifications.keep_alive"],
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.MessageKeyPassphrase == "" {
		return Config{}, fmt.Errorf("message key passphrase must be provided")
	}

	switch cfg.RealtimeTransport {
	case "redis", "nats":
	default:
		return Config{}, fmt.Errorf("unsupported realtime transport %q", cfg.RealtimeTransport)
	}

	if cfg.RealtimeTransport == "nats" && cfg.NATSURL == "" {
		return Config{}, fmt.Errorf("nats url must be provided for nats transport")
	}

	if cfg.AvatarMaxSizeMB <= 0 {
		cfg.AvatarMaxSizeMB = 5
	}

	return cfg, nil
}

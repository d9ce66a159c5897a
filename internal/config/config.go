package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Minecraft MinecraftConfig `yaml:"minecraft"`
	Rcon      RconConfig      `yaml:"rcon"`
	Storage   StorageConfig   `yaml:"storage"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Avatars   AvatarsConfig   `yaml:"avatars"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	LogLevel  string          `yaml:"log_level"`
}

// DiscordConfig holds bot settings
type DiscordConfig struct {
	Token       string   `yaml:"token"`
	Prefix      string   `yaml:"prefix"`
	Operators   []string `yaml:"operators"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
}

// MinecraftConfig describes the server shown to players in help replies
type MinecraftConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RconConfig holds remote console settings
type RconConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig selects the key-value backend
type StorageConfig struct {
	Driver    string `yaml:"driver"` // sqlite, redis or memory
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`
}

// TasksConfig holds the periodic task intervals
type TasksConfig struct {
	PresenceInterval time.Duration `yaml:"presence_interval"`
	ActivityInterval time.Duration `yaml:"activity_interval"`
	DisplayInterval  time.Duration `yaml:"display_interval"`
	BadgeInterval    time.Duration `yaml:"badge_interval"`
	HaltOnErr        *bool         `yaml:"halt_on_error"`
}

// AvatarsConfig controls badge provisioning
type AvatarsConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Size     int           `yaml:"size"`
	MinDelay time.Duration `yaml:"min_delay"` // minimum spacing between emoji uploads
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"` // 0 disables the HTTP API
}

// AuthConfig holds operator login settings for the HTTP API
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassword string        `yaml:"admin_password_hash"` // bcrypt hash
}

// EventsConfig configures the optional NATS event publisher
type EventsConfig struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// secrets are values that may come from the environment instead of the file
type secrets struct {
	DiscordToken  string `env:"CRAFTLINK_DISCORD_TOKEN"`
	RconAddress   string `env:"CRAFTLINK_RCON_ADDRESS"`
	RconPassword  string `env:"CRAFTLINK_RCON_PASSWORD"`
	RedisURL      string `env:"CRAFTLINK_REDIS_URL"`
	JWTSecret     string `env:"CRAFTLINK_JWT_SECRET"`
	AdminPassword string `env:"CRAFTLINK_ADMIN_PASSWORD_HASH"`
	NatsURL       string `env:"CRAFTLINK_NATS_URL"`
	LogLevel      string `env:"CRAFTLINK_LOG_LEVEL"`
}

// HaltOnError reports whether a failing tick should stop the process
func (t TasksConfig) HaltOnError() bool {
	return t.HaltOnErr == nil || *t.HaltOnErr
}

// Load reads configuration from a YAML file and overlays environment
// variables (a .env file in the working directory is loaded first).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Save writes cfg as YAML, replacing path atomically
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp"
	// The file may hold secrets
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Parse builds a Config from YAML bytes plus the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Discord.Token, s.DiscordToken)
	overlay(&cfg.Rcon.Address, s.RconAddress)
	overlay(&cfg.Rcon.Password, s.RconPassword)
	overlay(&cfg.Storage.RedisURL, s.RedisURL)
	overlay(&cfg.Auth.JWTSecret, s.JWTSecret)
	overlay(&cfg.Auth.AdminPassword, s.AdminPassword)
	overlay(&cfg.Events.NatsURL, s.NatsURL)
	overlay(&cfg.LogLevel, s.LogLevel)
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = "::"
	}
	if cfg.Discord.Name == "" {
		cfg.Discord.Name = "craftlink"
	}
	if cfg.Minecraft.Port == 0 {
		cfg.Minecraft.Port = 25565
	}
	if cfg.Rcon.Address == "" {
		cfg.Rcon.Address = "127.0.0.1:25575"
	}
	if cfg.Rcon.Timeout == 0 {
		cfg.Rcon.Timeout = 5 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "/var/lib/craftlink/craftlink.db"
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = "craftlink"
	}
	if cfg.Tasks.PresenceInterval == 0 {
		cfg.Tasks.PresenceInterval = time.Second
	}
	if cfg.Tasks.ActivityInterval == 0 {
		cfg.Tasks.ActivityInterval = time.Second
	}
	if cfg.Tasks.DisplayInterval == 0 {
		cfg.Tasks.DisplayInterval = 3 * time.Second
	}
	if cfg.Tasks.BadgeInterval == 0 {
		cfg.Tasks.BadgeInterval = 5 * time.Second
	}
	if cfg.Avatars.BaseURL == "" {
		cfg.Avatars.BaseURL = "https://mc-heads.net"
	}
	if cfg.Avatars.Size == 0 {
		cfg.Avatars.Size = 64
	}
	if cfg.Avatars.MinDelay == 0 {
		cfg.Avatars.MinDelay = 2 * time.Second
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Auth.AdminUser == "" {
		cfg.Auth.AdminUser = "admin"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "craftlink.events"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks values that have no sensible default
func (cfg *Config) Validate() error {
	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	case "redis":
		if cfg.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Avatars.Size < 16 || cfg.Avatars.Size > 256 {
		return fmt.Errorf("avatars.size must be between 16 and 256, got %d", cfg.Avatars.Size)
	}
	return nil
}

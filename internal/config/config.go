// Package config loads baton's configuration document: project defaults,
// language, per-platform transport credentials, and the ACP launch
// override, with environment > file > defaults precedence per spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// searchFilenames are tried, in order, at each directory on the walk up.
var searchFilenames = []string{"baton.config.json", ".batonrc.json", "baton.json"}

const maxParentWalk = 5

// Feishu holds the long-polling WebSocket transport's credentials.
type Feishu struct {
	AppID   string `mapstructure:"appId"`
	AppSecret string `mapstructure:"appSecret"`
	Domain  string `mapstructure:"domain"`
	Card    struct {
		PermissionTimeout int `mapstructure:"permissionTimeout"`
	} `mapstructure:"card"`
}

// Telegram holds the long-poll getUpdates transport's credentials.
type Telegram struct {
	BotToken          string `mapstructure:"botToken"`
	APIBase           string `mapstructure:"apiBase"`
	PermissionTimeout int    `mapstructure:"permissionTimeout"`
}

// WhatsApp covers both the webhook variant and the CLI-polling (wacli)
// variant described in spec.md §6.
type WhatsApp struct {
	AccessToken   string `mapstructure:"accessToken"`
	PhoneNumberID string `mapstructure:"phoneNumberId"`
	WACLI         struct {
		Bin            string `mapstructure:"bin"`
		StoreDir       string `mapstructure:"storeDir"`
		PollIntervalMs int    `mapstructure:"pollIntervalMs"`
	} `mapstructure:"wacli"`
}

// Slack holds the HMAC-verified webhook transport's credentials.
type Slack struct {
	BotToken      string `mapstructure:"botToken"`
	SigningSecret string `mapstructure:"signingSecret"`
	Port          int    `mapstructure:"port"`
	WebhookPath   string `mapstructure:"webhookPath"`
}

// Discord holds the Ed25519-verified webhook transport's credentials.
type Discord struct {
	BotToken    string `mapstructure:"botToken"`
	PublicKey   string `mapstructure:"publicKey"`
	Port        int    `mapstructure:"port"`
	WebhookPath string `mapstructure:"webhookPath"`
}

// ACP is the child-process launch override block.
type ACP struct {
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Cwd       string            `mapstructure:"cwd"`
	Env       map[string]string `mapstructure:"env"`
	Executor  string            `mapstructure:"executor"`
	Container ACPContainer      `mapstructure:"container"`
}

// ACPContainer switches the agent launch from a host subprocess to a
// Docker container.
type ACPContainer struct {
	Enabled bool              `mapstructure:"enabled"`
	Image   string            `mapstructure:"image"`
	Host    string            `mapstructure:"host"`
	Labels  map[string]string `mapstructure:"labels"`
}

// Project carries the default working directory and display name.
type Project struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

// Nats selects the event bus implementation. An empty URL keeps the
// in-process LocalBus; a non-empty URL opts into NATSBus.
type Nats struct {
	URL string `mapstructure:"url"`
}

// Config is the fully-resolved document spec.md §6 describes.
type Config struct {
	Project  Project  `mapstructure:"project"`
	Language string   `mapstructure:"language"`
	Feishu   Feishu   `mapstructure:"feishu"`
	Telegram Telegram `mapstructure:"telegram"`
	WhatsApp WhatsApp `mapstructure:"whatsapp"`
	Slack    Slack    `mapstructure:"slack"`
	Discord  Discord  `mapstructure:"discord"`
	ACP      ACP      `mapstructure:"acp"`
	Nats     Nats     `mapstructure:"nats"`
}

// Load resolves the configuration starting from startDir (normally the
// working directory the CLI was invoked from). explicitPath, if non-empty,
// is used verbatim instead of the parent-directory search.
func Load(startDir, explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("language", "en")
	v.SetDefault("project.path", startDir)

	v.SetEnvPrefix("baton")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := explicitPath
	if path == "" {
		found, err := findConfigFile(startDir)
		if err != nil {
			return nil, err
		}
		path = found
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Project.Path == "" {
		cfg.Project.Path = startDir
	}
	return &cfg, nil
}

// findConfigFile walks up to maxParentWalk parent directories from dir,
// returning the first matching filename found, or "" if none exists.
func findConfigFile(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	current := abs
	for i := 0; i <= maxParentWalk; i++ {
		for _, name := range searchFilenames {
			candidate := filepath.Join(current, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", nil
}

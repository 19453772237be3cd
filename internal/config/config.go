// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml. Listeners, parsers, controllers, filters, and intervals
// are all declared here and wired at startup.
type Config struct {
	Name        string            `yaml:"name"`
	Storage     StorageConfig     `yaml:"storage"`
	Listeners   ListenersConfig   `yaml:"listeners"`
	Parsers     []ParserConfig    `yaml:"parsers"`
	Controllers ControllersConfig `yaml:"controllers"`
	Filters     FiltersConfig     `yaml:"filters"`
	Intervals   []IntervalConfig  `yaml:"intervals"`
	Auth        AuthConfig        `yaml:"auth"`
}

// StorageConfig selects the database backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn"`
}

// ListenersConfig holds per-platform listener settings.
type ListenersConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Slack   SlackConfig   `yaml:"slack"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// DiscordConfig configures the Discord gateway listener.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig configures the Slack socket-mode listener.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AppToken  string `yaml:"app_token"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// HTTPConfig configures the JSON API listener.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ParserConfig declares one parser instance. Kind selects the
// implementation; the remaining fields apply per kind.
type ParserConfig struct {
	ID     string              `yaml:"id"`
	Kind   string              `yaml:"kind"` // echo | regex | split | lex
	Tags   []string            `yaml:"tags"`
	Noun   string              `yaml:"noun"`
	Verb   string              `yaml:"verb"`
	Fields []string            `yaml:"fields"` // arg mapper field order
	Rest   string              `yaml:"rest"`   // arg mapper overflow field
	Regexp string              `yaml:"regexp"` // regex kind only
	Labels map[string]string   `yaml:"labels"`
	Data   map[string][]string `yaml:"data"` // seed data for every command
	Lex    LexConfig           `yaml:"lex"`  // lex kind only
}

// LexConfig holds AWS Lex runtime credentials and bot coordinates.
type LexConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	BotName   string `yaml:"bot_name"`
	BotAlias  string `yaml:"bot_alias"`
}

// ControllersConfig toggles and configures the built-in controllers. The
// completion controller is always on; it is the resume half of the fragment
// protocol and the bot cannot run without it.
type ControllersConfig struct {
	Math    MathConfig    `yaml:"math"`
	Random  ToggleConfig  `yaml:"random"`
	Search  SearchConfig  `yaml:"search"`
	Weather WeatherConfig `yaml:"weather"`
	Learn   ToggleConfig  `yaml:"learn"`
	Account AccountConfig `yaml:"account"`
}

// ToggleConfig is a controller with no settings beyond on/off.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MathConfig configures the math controller.
type MathConfig struct {
	Enabled   bool `yaml:"enabled"`
	Precision int  `yaml:"precision"` // digits shown for float results
}

// SearchConfig configures the GitHub-backed search controller.
type SearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"` // GitHub API token, optional
	Count   int    `yaml:"count"` // max results per reply
}

// WeatherConfig configures the weather controller.
type WeatherConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	APIURL  string `yaml:"api_url"`
}

// AccountConfig configures sign-up and session issuance.
type AccountConfig struct {
	Enabled   bool        `yaml:"enabled"`
	JoinAllow bool        `yaml:"join_allow"` // permit self sign-up
	JoinRoles []string    `yaml:"join_roles"` // roles granted on sign-up
	Token     TokenConfig `yaml:"token"`
}

// TokenConfig holds JWT issuance settings.
type TokenConfig struct {
	Secret      string   `yaml:"secret"`
	Issuer      string   `yaml:"issuer"`
	Audience    []string `yaml:"audience"`
	DurationSec int      `yaml:"duration_sec"`
}

// FiltersConfig configures inbound message filters.
type FiltersConfig struct {
	IgnoreUsers []string `yaml:"ignore_users"`
}

// IntervalConfig declares a cron-scheduled command injection.
type IntervalConfig struct {
	Cron string              `yaml:"cron"` // 5-field cron expression
	Noun string              `yaml:"noun"`
	Verb string              `yaml:"verb"`
	Data map[string][]string `yaml:"data"`
}

// AuthConfig holds RBAC bootstrap settings.
type AuthConfig struct {
	RootAllow bool     `yaml:"root_allow"` // permit `sb user create-root`
	RootName  string   `yaml:"root_name"`
	RootRoles []string `yaml:"root_roles"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "switchboard"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = c.Name + ".db"
	}
	if c.Listeners.HTTP.Port == 0 {
		c.Listeners.HTTP.Port = 8080
	}
	if c.Controllers.Math.Precision == 0 {
		c.Controllers.Math.Precision = 6
	}
	if c.Controllers.Search.Count == 0 {
		c.Controllers.Search.Count = 3
	}
	if c.Controllers.Account.Token.Issuer == "" {
		c.Controllers.Account.Token.Issuer = c.Name
	}
	if c.Controllers.Account.Token.DurationSec == 0 {
		c.Controllers.Account.Token.DurationSec = 86400
	}
	if c.Auth.RootName == "" {
		c.Auth.RootName = "root"
	}
	for i := range c.Parsers {
		if c.Parsers[i].Verb == "" {
			c.Parsers[i].Verb = "get"
		}
	}
}

// parserKinds is the set of parser implementations the bot can construct.
var parserKinds = map[string]bool{
	"echo":  true,
	"regex": true,
	"split": true,
	"lex":   true,
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Storage.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of sqlite, mysql", c.Storage.Driver))
	}
	if c.Storage.Driver == "mysql" && c.Storage.DSN == "" {
		errs = append(errs, "storage.dsn is required for mysql")
	}

	if c.Listeners.Discord.Enabled && c.Listeners.Discord.Token == "" {
		errs = append(errs, "listeners.discord.token is required when discord is enabled")
	}
	if c.Listeners.Slack.Enabled {
		if c.Listeners.Slack.AppToken == "" {
			errs = append(errs, "listeners.slack.app_token is required when slack is enabled")
		}
		if c.Listeners.Slack.BotToken == "" {
			errs = append(errs, "listeners.slack.bot_token is required when slack is enabled")
		}
	}

	seen := map[string]bool{}
	for i, p := range c.Parsers {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("parsers[%d].id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("parsers[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
		if !parserKinds[p.Kind] {
			errs = append(errs, fmt.Sprintf("parsers[%d].kind %q is not one of echo, regex, split, lex", i, p.Kind))
		}
		if p.Kind == "regex" && p.Regexp == "" {
			errs = append(errs, fmt.Sprintf("parsers[%d].regexp is required for regex parsers", i))
		}
		if p.Kind == "lex" {
			if p.Lex.BotName == "" || p.Lex.BotAlias == "" || p.Lex.Region == "" {
				errs = append(errs, fmt.Sprintf("parsers[%d].lex needs bot_name, bot_alias, and region", i))
			}
		}
	}

	if c.Controllers.Account.Enabled && c.Controllers.Account.Token.Secret == "" {
		errs = append(errs, "controllers.account.token.secret is required when account is enabled")
	}

	for i, iv := range c.Intervals {
		if iv.Cron == "" {
			errs = append(errs, fmt.Sprintf("intervals[%d].cron is required", i))
		}
		if iv.Noun == "" {
			errs = append(errs, fmt.Sprintf("intervals[%d].noun is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

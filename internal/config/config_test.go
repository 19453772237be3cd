package config

import (
	"strings"
	"testing"
)

const fullConfig = `
name: testbot
storage:
  driver: sqlite
  dsn: ":memory:"
listeners:
  discord:
    enabled: true
    token: discord-token
    channel_id: "42"
  slack:
    enabled: true
    app_token: xapp-1
    bot_token: xoxb-1
  http:
    enabled: true
    port: 9090
parsers:
  - id: bang
    kind: split
    tags: ["!"]
    fields: [verb]
    rest: args
  - id: dice
    kind: regex
    tags: ["roll"]
    noun: random
    regexp: 'roll (\d+)'
    fields: [max]
  - id: lexbot
    kind: lex
    tags: ["book"]
    lex:
      region: us-east-1
      bot_name: Booking
      bot_alias: prod
controllers:
  math:
    enabled: true
    precision: 4
  account:
    enabled: true
    token:
      secret: hmac-secret
filters:
  ignore_users: [spambot]
intervals:
  - cron: "0 9 * * 1-5"
    noun: weather
    verb: get
    data:
      location: [seattle]
auth:
  root_allow: true
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Name != "testbot" {
		t.Errorf("name = %q", cfg.Name)
	}
	if !cfg.Listeners.Discord.Enabled || cfg.Listeners.Discord.Token != "discord-token" {
		t.Errorf("discord = %+v", cfg.Listeners.Discord)
	}
	if cfg.Listeners.HTTP.Port != 9090 {
		t.Errorf("http port = %d", cfg.Listeners.HTTP.Port)
	}
	if len(cfg.Parsers) != 3 {
		t.Fatalf("parsers = %d", len(cfg.Parsers))
	}
	if cfg.Parsers[2].Lex.BotName != "Booking" {
		t.Errorf("lex parser = %+v", cfg.Parsers[2])
	}
	if cfg.Controllers.Math.Precision != 4 {
		t.Errorf("math precision = %d", cfg.Controllers.Math.Precision)
	}
	if len(cfg.Intervals) != 1 || cfg.Intervals[0].Cron != "0 9 * * 1-5" {
		t.Errorf("intervals = %+v", cfg.Intervals)
	}
	if !cfg.Auth.RootAllow {
		t.Error("root_allow not set")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Name != "switchboard" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "switchboard.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Listeners.HTTP.Port != 8080 {
		t.Errorf("http port = %d", cfg.Listeners.HTTP.Port)
	}
	if cfg.Controllers.Math.Precision != 6 {
		t.Errorf("math precision = %d", cfg.Controllers.Math.Precision)
	}
	if cfg.Controllers.Search.Count != 3 {
		t.Errorf("search count = %d", cfg.Controllers.Search.Count)
	}
	if cfg.Controllers.Account.Token.Issuer != "switchboard" {
		t.Errorf("token issuer = %q", cfg.Controllers.Account.Token.Issuer)
	}
	if cfg.Controllers.Account.Token.DurationSec != 86400 {
		t.Errorf("token duration = %d", cfg.Controllers.Account.Token.DurationSec)
	}
	if cfg.Auth.RootName != "root" {
		t.Errorf("root name = %q", cfg.Auth.RootName)
	}
}

func TestParserVerbDefaultsToGet(t *testing.T) {
	cfg, err := Parse([]byte(`
parsers:
  - id: p1
    kind: echo
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Parsers[0].Verb != "get" {
		t.Errorf("verb = %q", cfg.Parsers[0].Verb)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string // substring of the error
	}{
		{
			"bad storage driver",
			"storage:\n  driver: postgres\n",
			"storage.driver",
		},
		{
			"mysql without dsn",
			"storage:\n  driver: mysql\n",
			"storage.dsn is required",
		},
		{
			"discord without token",
			"listeners:\n  discord:\n    enabled: true\n",
			"listeners.discord.token",
		},
		{
			"slack without tokens",
			"listeners:\n  slack:\n    enabled: true\n",
			"listeners.slack.app_token",
		},
		{
			"parser without id",
			"parsers:\n  - kind: echo\n",
			"parsers[0].id is required",
		},
		{
			"duplicate parser ids",
			"parsers:\n  - id: p1\n    kind: echo\n  - id: p1\n    kind: echo\n",
			"duplicated",
		},
		{
			"unknown parser kind",
			"parsers:\n  - id: p1\n    kind: magic\n",
			"parsers[0].kind",
		},
		{
			"regex without expression",
			"parsers:\n  - id: p1\n    kind: regex\n",
			"regexp is required",
		},
		{
			"lex without coordinates",
			"parsers:\n  - id: p1\n    kind: lex\n",
			"bot_name, bot_alias, and region",
		},
		{
			"account without secret",
			"controllers:\n  account:\n    enabled: true\n",
			"token.secret is required",
		},
		{
			"interval without cron",
			"intervals:\n  - noun: weather\n",
			"intervals[0].cron is required",
		},
		{
			"interval without noun",
			"intervals:\n  - cron: '* * * * *'\n",
			"intervals[0].noun is required",
		},
		{
			"not yaml",
			": : :",
			"config: parse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

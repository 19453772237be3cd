package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/bot"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/controller"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/fragment"
	"github.com/zulandar/switchboard/internal/interval"
	"github.com/zulandar/switchboard/internal/listener"
	discordlistener "github.com/zulandar/switchboard/internal/listener/discord"
	"github.com/zulandar/switchboard/internal/listener/httpapi"
	slacklistener "github.com/zulandar/switchboard/internal/listener/slack"
	"github.com/zulandar/switchboard/internal/parser"
	lexparser "github.com/zulandar/switchboard/internal/parser/lex"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Switchboard bot",
		Long:  "Connects the configured listeners, routes messages through parsers and controllers, and blocks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Storage)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	b, scheduler, err := buildBot(cfg, gormDB, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if scheduler != nil {
		scheduler.Start(ctx)
	}
	return b.Run(ctx)
}

// botRef breaks the constructor cycle between the dispatcher (which needs a
// replier) and the bot (which needs the dispatcher). It is pointed at the
// bot once everything else is built.
type botRef struct {
	b *bot.Bot
}

func (r *botRef) Reply(ctx context.Context, cmdCtx command.Context, text string) error {
	return r.b.Reply(ctx, cmdCtx, text)
}

func (r *botRef) ExecuteCommand(ctx context.Context, cmds ...command.Command) {
	r.b.ExecuteCommand(ctx, cmds...)
}

// issuerVerifier adapts auth.Issuer to the HTTP listener's token check.
type issuerVerifier struct {
	issuer *auth.Issuer
}

func (v *issuerVerifier) VerifySession(token string) (string, error) {
	claims, err := v.issuer.VerifySession(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// buildBot wires stores, parsers, controllers, listeners, and intervals
// into a runnable Bot.
func buildBot(cfg *config.Config, gormDB *gorm.DB, cmd *cobra.Command) (*bot.Bot, *interval.Scheduler, error) {
	out := cmd.OutOrStdout()
	ref := &botRef{}

	fragStore, err := fragment.NewStore(gormDB)
	if err != nil {
		return nil, nil, err
	}
	authStore, err := auth.NewStore(gormDB)
	if err != nil {
		return nil, nil, err
	}

	registry, err := buildParsers(cfg.Parsers)
	if err != nil {
		return nil, nil, err
	}

	dispatcher, err := controller.NewDispatcher(controller.DispatcherOpts{
		Authz:   authStore,
		Replier: ref,
		Out:     out,
	})
	if err != nil {
		return nil, nil, err
	}

	var issuer *auth.Issuer
	if cfg.Controllers.Account.Enabled {
		issuer, err = auth.NewIssuer(auth.IssuerOpts{
			Store:       authStore,
			Secret:      cfg.Controllers.Account.Token.Secret,
			IssuerName:  cfg.Controllers.Account.Token.Issuer,
			Audience:    cfg.Controllers.Account.Token.Audience,
			DurationSec: cfg.Controllers.Account.Token.DurationSec,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	if err := registerControllers(cfg, gormDB, dispatcher, ref, fragStore, registry, authStore, issuer); err != nil {
		return nil, nil, err
	}

	listeners, err := buildListeners(cfg, issuer)
	if err != nil {
		return nil, nil, err
	}

	b, err := bot.New(bot.Opts{
		Listeners:   listeners,
		Parsers:     registry,
		Dispatcher:  dispatcher,
		IgnoreUsers: cfg.Filters.IgnoreUsers,
		Out:         out,
	})
	if err != nil {
		return nil, nil, err
	}
	ref.b = b

	var scheduler *interval.Scheduler
	if len(cfg.Intervals) > 0 {
		intervals := make([]interval.Interval, 0, len(cfg.Intervals))
		for _, iv := range cfg.Intervals {
			intervals = append(intervals, interval.Interval{
				Cron:       iv.Cron,
				Noun:       iv.Noun,
				Verb:       command.Verb(iv.Verb),
				Data:       command.Data(iv.Data),
				ListenerID: listeners[0].ID(),
			})
		}
		scheduler, err = interval.New(interval.Opts{Executor: ref, Intervals: intervals})
		if err != nil {
			return nil, nil, err
		}
	}

	return b, scheduler, nil
}

// buildParsers constructs the parser registry from config declarations.
func buildParsers(configs []config.ParserConfig) (*parser.Registry, error) {
	registry := parser.NewRegistry()

	for _, pc := range configs {
		core := parser.Core{
			ParserID: pc.ID,
			Tags:     pc.Tags,
			Noun:     pc.Noun,
			Verb:     command.Verb(pc.Verb),
			Labels:   pc.Labels,
			Seed:     command.Data(pc.Data),
		}
		mapper := parser.ArgMapper{Fields: pc.Fields, Rest: pc.Rest}

		var (
			p   parser.Parser
			err error
		)
		switch pc.Kind {
		case "echo":
			p, err = parser.NewEcho(parser.EchoOpts{Core: core, Mapper: mapper})
		case "regex":
			p, err = parser.NewRegex(parser.RegexOpts{Core: core, Mapper: mapper, Regexp: pc.Regexp})
		case "split":
			p, err = parser.NewSplit(parser.SplitOpts{Core: core, Mapper: mapper})
		case "lex":
			p, err = lexparser.New(lexparser.Opts{
				Core:      core,
				AccessKey: pc.Lex.AccessKey,
				SecretKey: pc.Lex.SecretKey,
				Region:    pc.Lex.Region,
				BotName:   pc.Lex.BotName,
				BotAlias:  pc.Lex.BotAlias,
			})
		default:
			err = fmt.Errorf("parser: unknown kind %q", pc.Kind)
		}
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// registerControllers adds the completion controller plus every enabled
// optional controller to the dispatch table.
func registerControllers(cfg *config.Config, gormDB *gorm.DB, dispatcher *controller.Dispatcher, ref *botRef, fragStore *fragment.Store, registry *parser.Registry, authStore *auth.Store, issuer *auth.Issuer) error {
	// Completion is not optional: it is the resume half of the fragment
	// protocol.
	completion, err := controller.NewCompletion(controller.CompletionOpts{
		Store:    fragStore,
		Parsers:  registry,
		Replier:  ref,
		Executor: ref,
	})
	if err != nil {
		return err
	}
	if err := dispatcher.Register(completion); err != nil {
		return err
	}

	if cfg.Controllers.Math.Enabled {
		math, err := controller.NewMath(controller.MathOpts{
			Replier:   ref,
			Executor:  ref,
			Precision: cfg.Controllers.Math.Precision,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(math); err != nil {
			return err
		}
	}

	if cfg.Controllers.Random.Enabled {
		random, err := controller.NewRandom(controller.RandomOpts{Replier: ref})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(random); err != nil {
			return err
		}
	}

	if cfg.Controllers.Search.Enabled {
		search, err := controller.NewSearch(controller.SearchOpts{
			Replier:  ref,
			Executor: ref,
			Token:    cfg.Controllers.Search.Token,
			Count:    cfg.Controllers.Search.Count,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(search); err != nil {
			return err
		}
	}

	if cfg.Controllers.Weather.Enabled {
		weather, err := controller.NewWeather(controller.WeatherOpts{
			Replier:  ref,
			Executor: ref,
			APIKey:   cfg.Controllers.Weather.APIKey,
			APIURL:   cfg.Controllers.Weather.APIURL,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(weather); err != nil {
			return err
		}
	}

	if cfg.Controllers.Learn.Enabled {
		learn, err := controller.NewLearn(controller.LearnOpts{
			DB:       gormDB,
			Replier:  ref,
			Executor: ref,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(learn); err != nil {
			return err
		}
	}

	if cfg.Controllers.Account.Enabled {
		account, err := controller.NewAccount(controller.AccountOpts{
			Store:     authStore,
			Issuer:    issuer,
			Replier:   ref,
			JoinAllow: cfg.Controllers.Account.JoinAllow,
			JoinRoles: cfg.Controllers.Account.JoinRoles,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Register(account); err != nil {
			return err
		}
	}

	return nil
}

// buildListeners constructs every enabled listener from config.
func buildListeners(cfg *config.Config, issuer *auth.Issuer) ([]listener.Listener, error) {
	var listeners []listener.Listener

	if cfg.Listeners.Discord.Enabled {
		l, err := discordlistener.New(discordlistener.Opts{
			ID:        "discord",
			BotToken:  cfg.Listeners.Discord.Token,
			ChannelID: cfg.Listeners.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}

	if cfg.Listeners.Slack.Enabled {
		l, err := slacklistener.New(slacklistener.Opts{
			ID:        "slack",
			AppToken:  cfg.Listeners.Slack.AppToken,
			BotToken:  cfg.Listeners.Slack.BotToken,
			ChannelID: cfg.Listeners.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}

	if cfg.Listeners.HTTP.Enabled {
		var verifier httpapi.TokenVerifier
		if issuer != nil {
			verifier = &issuerVerifier{issuer: issuer}
		}
		l, err := httpapi.New(httpapi.Opts{
			ID:       "http",
			Port:     cfg.Listeners.HTTP.Port,
			Verifier: verifier,
		})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}

	if len(listeners) == 0 {
		return nil, fmt.Errorf("serve: no listeners enabled in config")
	}
	return listeners, nil
}

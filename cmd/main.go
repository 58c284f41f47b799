package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/cache"
	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/constant"
	"github.com/xeptore/teradl/ctxutil"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/forward"
	"github.com/xeptore/teradl/log"
	"github.com/xeptore/teradl/metrics"
	"github.com/xeptore/teradl/ratelimit"
	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/relay"
	"github.com/xeptore/teradl/resolver"
	sessions "github.com/xeptore/teradl/session"
	"github.com/xeptore/teradl/subscription"
	"github.com/xeptore/teradl/tgutil"
)

const (
	flagConfigFilePath = "config"
)

func main() {
	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     constant.AppName,
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Telegram TeraBox link resolver and relay bot",
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Run the bot",
				Action:  run,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     flagConfigFilePath,
						Aliases:  []string{"c"},
						Usage:    "Config file path",
						Required: false,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	var (
		cfgEnv      = os.Getenv("CONFIG")
		cfgFilePath = cliCtx.String(flagConfigFilePath)
	)
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath == "" && cfgEnv == "":
		return nil, errors.New("config file path and config environment variable are both empty. specify one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		cfg, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		return cfg, nil
	default:
		logger.Debug().Msg("Loading config from environment variable")
		cfg, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		return cfg, nil
	}
}

func ensureDir(logger zerolog.Logger, dir, name string) error {
	if _, err := os.ReadDir(dir); nil != err && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s directory: %v", name, err)
	} else if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("dir", dir).Msgf("%s directory does not exist. Creating...", name)
		if err := os.MkdirAll(dir, 0o0755); nil != err {
			return fmt.Errorf("failed to create %s directory: %v", name, err)
		}
		logger.Info().Str("dir", dir).Msgf("%s directory created", name)
	}
	return nil
}

func run(cliCtx *cli.Context) (err error) {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bootLogger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	cfg, err := loadConfig(cliCtx, bootLogger)
	if nil != err {
		return err
	}
	logger, err := log.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	if nil != err {
		return err
	}

	var (
		appHash  = os.Getenv("APP_HASH")
		botToken = os.Getenv("BOT_TOKEN")
	)
	if botToken == "" {
		return errors.New("BOT_TOKEN environment variable is empty")
	}
	appID, err := strconv.Atoi(os.Getenv("APP_ID"))
	if nil != err {
		return errors.New("failed to parse APP_ID environment variable to integer")
	}

	if err := ensureDir(logger, cfg.CredsDir, "Credentials"); nil != err {
		return err
	}
	if cfg.TempDir != "" {
		if err := ensureDir(logger, cfg.TempDir, "Temporary"); nil != err {
			return err
		}
	}

	store, err := records.Open(cfg.DataFile)
	if nil != err {
		return err
	}
	logger.Info().Int("users", store.Len()).Str("path", store.Path()).Msg("User records loaded")

	peers := cache.NewPeerCache(config.PeerCacheTTL)
	defer peers.Stop()
	cooldown := ratelimit.NewCooldown(cfg.Cooldown)
	defer cooldown.Close()
	sessionStore := sessions.NewStore(cfg.SessionTTL)
	defer sessionStore.Close()

	scheduler := cron.New(cron.WithChain(cron.Recover(log.Cron(logger.With().Str("module", "cron").Logger()))))
	if _, err := scheduler.AddFunc(config.StoreSweepSchedule, func() {
		expiredSessions, expiredCooldowns := sessionStore.Sweep(), cooldown.Sweep()
		logger.Debug().
			Int("expired_sessions", expiredSessions).
			Int("expired_cooldowns", expiredCooldowns).
			Msg("Swept expired entries")
	}); nil != err {
		return fmt.Errorf("failed to schedule store sweeps: %v", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.MetricsAddr != "" {
		metrics.Init()
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger.With().Str("module", "metrics").Logger()); nil != err {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	d := tg.NewUpdateDispatcher()
	updateHandler := updates.New(updates.Config{Handler: d}) //nolint:exhaustruct

	client := telegram.NewClient(
		appID,
		appHash,
		//nolint:exhaustruct
		telegram.Options{
			SessionStorage: &session.FileStorage{Path: filepath.Join(cfg.CredsDir, "session.json")},
			UpdateHandler:  updateHandler,
			MaxRetries:     -1,
			AckBatchSize:   100,
			AckInterval:    10 * time.Second,
			RetryInterval:  5 * time.Second,
			DialTimeout:    10 * time.Second,
			Device:         tgutil.Device,
			Middlewares:    tgutil.DefaultMiddlewares(ctx),
		},
	)
	logger.Debug().Msg("Telegram client initialized.")

	//nolint:exhaustruct
	w := &Worker{
		config:   cfg,
		texts:    newTexts(cfg),
		client:   client,
		peers:    peers,
		cooldown: cooldown,
		sessions: sessionStore,
		records:  store,
		resolver: resolver.New(
			cfg.Resolver.BaseURL,
			cfg.Resolver.Key,
			logger.With().Str("module", "resolver").Logger(),
			resolver.WithTimeout(cfg.Resolver.Timeout),
		),
		relay:  relay.New(logger.With().Str("module", "relay").Logger(), relay.WithTempDir(cfg.TempDir)),
		logger: logger.With().Str("module", "worker").Logger(),
	}

	clientCtx, cancel := ctxutil.WithDelayedTimeout(ctx, config.ShutdownGracePeriod)
	defer cancel()

	// Chat operations use clientCtx, which outlives ctx by the shutdown grace period.
	return client.Run(clientCtx, func(_ context.Context) error {
		status, err := client.Auth().Status(ctx)
		if nil != err {
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			return fmt.Errorf("failed to get Telegram client auth status: %v", err)
		}
		if !status.Authorized {
			if _, authErr := client.Auth().Bot(ctx, botToken); nil != authErr {
				if errors.Is(ctx.Err(), context.Canceled) {
					return context.Canceled
				}
				return fmt.Errorf("failed to authorize Telegram bot: %v", authErr)
			}
			logger.Debug().Msg("Telegram client authorized.")
		} else {
			logger.Debug().Msg("Telegram client has already been authorized.")
		}

		self, err := client.Self(ctx)
		if nil != err {
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			return fmt.Errorf("failed to get bot account: %v", err)
		}

		api := tg.NewClient(client)
		w.api = api
		w.sender = message.NewSender(api)
		w.self = self
		w.gate = subscription.NewGate(
			tgutil.NewMembershipQuerier(api, w.sender, peers, cfg.Subscription.Channel, cfg.Subscription.Group),
			logger.With().Str("module", "subscription").Logger(),
		)
		w.forwarder = newForwarder(ctx, w, cfg.SavePeer)

		onMessage := w.buildOnMessage(ctx, clientCtx)
		d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
			return onMessage(ctx, e, u)
		})
		d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
			return onMessage(ctx, e, u)
		})
		d.OnBotCallbackQuery(w.buildOnCallback(ctx, clientCtx))

		logger.Info().
			Str("username", self.Username).
			Str("channel", cfg.Subscription.Channel).
			Str("group", cfg.Subscription.Group).
			Bool("forwarding", w.forwarder.Enabled()).
			Msg("Bot is running")
		<-ctx.Done()

		logger.Debug().Msg("Stopping bot due to received signal")
		w.Wait(clientCtx)
		return nil
	})
}

// newForwarder wires the save chat. Forwarding stays disabled when ref is empty or cannot be
// resolved, which is logged but never fatal.
func newForwarder(ctx context.Context, w *Worker, ref string) *forward.Forwarder {
	logger := w.logger.With().Str("module", "forward").Str("save_peer", ref).Logger()
	if ref == "" {
		return forward.New(nil, config.SaveForwardInterval, logger)
	}

	sender := forward.SenderFunc(func(ctx context.Context, text string) error {
		peer, err := tgutil.ResolvePeer(ctx, w.sender, w.peers, ref)
		if nil != err {
			return err
		}
		_, err = w.sender.To(peer).StyledText(ctx, styled(text))
		return err
	})
	if _, err := tgutil.ResolvePeer(ctx, w.sender, w.peers, ref); nil != err {
		switch {
		case errutil.IsContext(ctx):
		case errutil.IsFlaw(err):
			logger.Warn().Func(log.Flaw(err)).Msg("Save chat is not reachable yet. Forwarding is retried on every request")
		default:
			panic(errutil.UnknownError(err))
		}
	}
	return forward.New(sender, config.SaveForwardInterval, logger)
}

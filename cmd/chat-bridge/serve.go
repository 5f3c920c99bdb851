package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"twitch-chat-bridge/chatqueue"
	"twitch-chat-bridge/config"
	"twitch-chat-bridge/delivery"
	"twitch-chat-bridge/helix"
	"twitch-chat-bridge/logging"
	"twitch-chat-bridge/metrics"
	"twitch-chat-bridge/model"
	"twitch-chat-bridge/service"
	"twitch-chat-bridge/storage"
	"twitch-chat-bridge/tokens"
	"twitch-chat-bridge/twitch"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Подключиться к чату и раздавать сообщения по HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	defer func() { _ = logger.Sync() }()

	for _, key := range cfg.Warnings {
		logger.Warnf("неизвестный ключ конфигурации %q пропущен", key)
	}
	red := cfg.Redacted()
	logger.Infof("канал #%s, сервер %s:%d, токен %s, порт %d",
		red.Twitch.Channel, red.Twitch.Server, red.Twitch.Port, red.Twitch.Token, red.HTTP.ListenPort)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := helix.NewClient(cfg.Twitch.Token, cfg.Twitch.ClientID, cfg.Twitch.HelixTimeout.Std())
	token, catalog, err := prepareTwitch(ctx, api, cfg.Twitch.Channel, logger.Named("helix"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(reg)

	queue, err := chatqueue.New(chatqueue.Config{
		Capacity: cfg.Queue.MessageLimit,
		MaxAge:   cfg.Queue.MessageTimeout.Std(),
	}, chatqueue.WithObserver(stats))
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	logger.Infof("идентификатор запуска %s", queue.Incarnation())

	g, gctx := errgroup.WithContext(ctx)

	var journal *storage.Journal
	if cfg.Journal.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Journal.DSN)
		if err != nil {
			return fmt.Errorf("pgxpool.New: %w", err)
		}
		defer pool.Close()

		if err := storage.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		journal = storage.NewJournal(gctx, pool, queue.Incarnation(), storage.JournalConfig{
			MaxBatch:      cfg.Journal.MaxBatch,
			FlushEvery:    cfg.Journal.FlushEvery.Std(),
			ChanBuffer:    cfg.Journal.ChanBuffer,
			StatsLogEvery: cfg.Journal.StatsLogEvery.Std(),
			FlushTimeout:  cfg.Journal.FlushTimeout.Std(),
		}, logger.Named("journal"))
		defer func() { <-journal.Done() }()
	}

	handler := service.NewHandler(queue, journal, cfg.Twitch.Channel, logger.Named("service"))
	newSession := func() *twitch.Session {
		return twitch.NewSession(twitch.SessionConfig{
			Login:   token.Login,
			Token:   cfg.Twitch.Token,
			Channel: cfg.Twitch.Channel,
		}, handler,
			twitch.WithBadges(catalog),
			twitch.WithLogger(logger.Named("twitch")),
			twitch.WithFrameObserver(stats),
		)
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return twitch.Dial(ctx, cfg.Twitch.Server, cfg.Twitch.Port)
	}
	svc := service.New(dial, newSession, cfg.Twitch.ReconnectEvery.Std(), logger.Named("service"))

	srv := delivery.NewServer(delivery.Config{
		ListenPort:     cfg.HTTP.ListenPort,
		RequestTimeout: cfg.HTTP.RequestTimeout.Std(),
		StaticDir:      cfg.HTTP.StaticDir,
	}, queue,
		delivery.WithLogger(logger.Named("http")),
		delivery.WithPollObserver(stats),
		delivery.WithMetrics(reg),
	)

	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		return tokens.NewWatcher(api, cfg.Twitch.TokenCheck.Std(), logger.Named("tokens")).Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Infof("завершение работы...")
		return nil
	}
	return err
}

// prepareTwitch проверяет токен, находит канал и собирает каталог значков.
// Любая ошибка здесь фатальна: без неё нет смысла подключаться к чату.
func prepareTwitch(ctx context.Context, api *helix.Client, channel string, log *zap.SugaredLogger) (helix.TokenInfo, model.BadgeCatalog, error) {
	token, err := api.ValidateToken(ctx)
	if err != nil {
		return helix.TokenInfo{}, nil, err
	}
	log.Infof("токен принадлежит %s, истекает через %s", token.Login, token.ExpiresIn)

	user, err := api.UserByLogin(ctx, channel)
	if err != nil {
		return helix.TokenInfo{}, nil, err
	}

	global, err := api.GlobalBadges(ctx)
	if err != nil {
		return helix.TokenInfo{}, nil, err
	}
	own, err := api.ChannelBadges(ctx, user.ID)
	if err != nil {
		return helix.TokenInfo{}, nil, err
	}

	catalog := model.MergeCatalogs(global, own)
	log.Infof("канал %s (id %s): значков в каталоге %d", user.DisplayName, user.ID, catalog.Len())
	return token, catalog, nil
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"livechat/config"
	chathttp "livechat/internal/chat/delivery/http"
	chatws "livechat/internal/chat/delivery/ws"
	"livechat/internal/chat/model"
	"livechat/internal/chat/repository"
	"livechat/internal/chat/usecase"
	"livechat/internal/collab"
	"livechat/internal/events"
	"livechat/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	v, err := config.LoadConfig("config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	lg, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Bun.DSN))
	sqlDB := sql.OpenDB(connector)
	db := bun.NewDB(sqlDB, pgdialect.New())
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		lg.Error("failed to ping database", "err", err)
		os.Exit(1)
	}
	if err := createSchema(ctx, db); err != nil {
		lg.Error("failed to create schema", "err", err)
		os.Exit(1)
	}

	hub := events.NewHub(*lg)
	var broadcaster events.Broadcaster = hub
	if cfg.AMQP.URL != "" {
		relay, err := events.NewRelay(cfg.AMQP.URL, cfg.AMQP.Exchange, hub, *lg)
		if err != nil {
			lg.Error("failed to connect event relay", "err", err)
			os.Exit(1)
		}
		defer relay.Close()
		if err := relay.Start(); err != nil {
			lg.Error("failed to start event relay", "err", err)
			os.Exit(1)
		}
		broadcaster = relay
	}

	repo := repository.NewChatRepository(db, *lg)
	uc := usecase.NewChatUsecase(repo, broadcaster, *lg, *cfg)

	files, err := collab.NewDiskFileStore(cfg.Chat.AttachmentDir, "/uploads")
	if err != nil {
		lg.Error("failed to init file store", "err", err)
		os.Exit(1)
	}
	auth := collab.HeaderAuth{}
	lookup := collab.EmptyLookup{}

	mux := http.NewServeMux()
	chathttp.NewHandler(uc, auth, lookup, lookup, files, *lg).Register(mux)
	wsHandler := chatws.NewHandler(uc, hub, auth, *lg, nil)
	mux.HandleFunc("GET /ws", wsHandler.HandleWebSocket)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Chat.AttachmentDir))))

	go sweepStaleWaiting(ctx, uc, cfg, *lg)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		lg.Info("livechat server listening", "addr", cfg.Server.Port, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func createSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*model.Conversation)(nil),
		(*model.Message)(nil),
		(*model.Attachment)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// sweepStaleWaiting applies the abandonment policy: waiting conversations
// older than the TTL are closed so the agent queue cannot accumulate
// conversations whose customer is long gone.
func sweepStaleWaiting(ctx context.Context, uc *usecase.ChatUsecase, cfg *config.Config, lg logger.Logger) {
	ticker := time.NewTicker(cfg.Chat.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.ExpireStaleWaiting(ctx, cfg.Chat.WaitingTTL)
			if err != nil {
				lg.Error("stale waiting sweep failed", "err", err)
				continue
			}
			if n > 0 {
				lg.Info("closed stale waiting conversations", "count", n)
			}
		}
	}
}

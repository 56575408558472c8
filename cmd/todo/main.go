package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharedtodo/internal/auth"
	"sharedtodo/internal/config"
	"sharedtodo/internal/gateway"
	"sharedtodo/internal/gateway/memory"
	"sharedtodo/internal/scheduler"
	"sharedtodo/internal/server"
	"sharedtodo/internal/storage/sqlite"
	"sharedtodo/internal/todo"
)

const devTokenTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		logger.Error("unable to create token verifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.PrintToken != "" {
		token, err := verifier.Issue(auth.Identity{UID: cfg.PrintToken, Name: cfg.PrintToken}, devTokenTTL)
		if err != nil {
			logger.Error("unable to issue token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	gw, closeGateway, err := openGateway(cfg, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeGateway()

	opts := todo.Options{Logger: logger, DefaultCategoryName: cfg.DefaultCategory}
	profiles := todo.NewProfileStore(gw, opts)
	categories := todo.NewCategoryStore(gw, profiles, opts)
	tasks := todo.NewTaskStore(gw, categories, opts)

	sweeper := todo.NewSweeper(gw, logger)
	if _, err := sweeper.Run(context.Background()); err != nil {
		logger.Warn("startup sweep incomplete", slog.String("error", err.Error()))
	}

	sched := scheduler.New(time.Local, logger)
	if cfg.ReconcileInterval > 0 {
		_, err := sched.ScheduleInterval("sweep", cfg.ReconcileInterval, cfg.ReconcileInterval, func(ctx context.Context) error {
			_, err := sweeper.Run(ctx)
			return err
		})
		if err != nil {
			logger.Error("unable to schedule sweep", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Stores{
		Categories: categories,
		Tasks:      tasks,
		Profiles:   profiles,
	}, verifier, logger, cfg.StaticDir)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("db", cfg.DBPath))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func openGateway(cfg config.Config, logger *slog.Logger) (gateway.Gateway, func(), error) {
	if cfg.InMemory() {
		gw := memory.New(logger)
		logger.Warn("using in-memory storage, data is lost on exit")
		return gw, func() { _ = gw.Close() }, nil
	}
	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menta2k/idphoto/internal/api"
	"github.com/menta2k/idphoto/internal/app"
	"github.com/menta2k/idphoto/internal/config"
	"github.com/menta2k/idphoto/internal/logger"
	"github.com/menta2k/idphoto/internal/utils"
)

func main() {
	var configPath, addr string
	flag.StringVar(&configPath, "config", "", "JSON config file")
	flag.StringVar(&addr, "addr", "", "listen address (default from config)")
	flag.Parse()

	cfg := config.Default()
	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if err := logger.Init(cfg.LoggerOptions()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()
	log := *logger.Get()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Collaborators load in the background; /health reports 503 until they are ready
	go func() {
		if err := a.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("serving with collaborators that loaded")
		}
	}()

	server := api.NewServer(a, log)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr).Str("version", app.Version).Msg("server listening")
	if err := server.Listen(cfg.Server.Addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}

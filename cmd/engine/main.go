package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/points_trading/internal/domain"
	"github.com/vitos/points_trading/internal/infrastructure/logger"
	"github.com/vitos/points_trading/internal/infrastructure/quotes"
	"github.com/vitos/points_trading/internal/infrastructure/storage"
	"github.com/vitos/points_trading/internal/usecase"
	"github.com/vitos/points_trading/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Quotes struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"quotes"`
	Engine struct {
		RefreshIntervalSec int            `yaml:"refresh_interval_sec"`
		SweepIntervalSec   int            `yaml:"sweep_interval_sec"`
		Leverage           int            `yaml:"leverage"`
		Assets             []domain.Asset `yaml:"assets"`
	} `yaml:"engine"`
	User struct {
		Name           string `yaml:"name"`
		InitialBalance int64  `yaml:"initial_balance"`
	} `yaml:"user"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "engine.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Seed the demo user on first run
	userID := int64(1)
	if _, err := store.GetUser(ctx, userID); errors.Is(err, domain.ErrUserNotFound) {
		userID, err = store.CreateUser(ctx, &domain.User{
			Name:    cfg.User.Name,
			Balance: cfg.User.InitialBalance,
		})
		if err != nil {
			log.Fatal("Failed to seed user", zap.Error(err))
		}
		log.Info("Seeded user", zap.Int64("id", userID), zap.Int64("balance", cfg.User.InitialBalance))
	} else if err != nil {
		log.Fatal("Failed to load user", zap.Error(err))
	}

	// 5. Init Quote Source + Engine
	bybitAdapter := quotes.NewBybitAdapter(cfg.Quotes.RESTEndpoint, cfg.Quotes.WSEndpoint, log)
	cache := usecase.NewPriceCache()
	service := usecase.NewPositionService(store, store, bybitAdapter, cache, cfg.Engine.Leverage, log)

	// Streamed tickers keep the cache warm between refresh cycles.
	bybitAdapter.OnPriceUpdate(func(symbol string, price float64) {
		cache.Put(symbol, price)
	})
	symbols := make([]string, len(cfg.Engine.Assets))
	for i, a := range cfg.Engine.Assets {
		symbols[i] = a.Symbol
	}
	if err := bybitAdapter.Subscribe(ctx, symbols); err != nil {
		log.Error("Failed to subscribe to ticker stream", zap.Error(err))
	}

	// 6. Start Background Loops
	worker := usecase.NewTradeWorker(service, bybitAdapter, userID, cfg.Engine.Assets, log)
	worker.SetIntervals(
		time.Duration(cfg.Engine.RefreshIntervalSec)*time.Second,
		time.Duration(cfg.Engine.SweepIntervalSec)*time.Second,
	)
	wait := worker.Start(ctx)

	// 7. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, service, userID, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	_ = wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

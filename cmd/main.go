package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpapi "github.com/quietline/quietline/internal/api/http"
	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/chat"
	"github.com/quietline/quietline/internal/config"
	"github.com/quietline/quietline/internal/persona"
	"github.com/quietline/quietline/internal/profile"
	"github.com/quietline/quietline/internal/repository"
	"github.com/quietline/quietline/internal/repository/model"
	"github.com/quietline/quietline/internal/room"
	"github.com/quietline/quietline/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := connectRedis(cfg.Redis)
	if err != nil {
		log.Error("failed to connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	ch := channel.NewRedis(rdb, log)
	defer ch.Close()

	profileRepo := repository.NewPostgresProfileRepository(db)

	profileService := profile.NewService(profileRepo, log)
	roomService := room.NewService(ch, log)
	chatService := chat.NewService(ch, log)

	generator, err := persona.NewAnyLLM(cfg.Match.Provider, cfg.Match.Model, cfg.Match.APIKey)
	if err != nil {
		log.Error("failed to build llm provider", slog.Any("error", err))
		os.Exit(1)
	}
	personaService := persona.NewService(generator, log)

	profileController := httpapi.NewProfileController(profileService, cfg.Auth.JWTSecret)
	roomController := httpapi.NewRoomController(roomService, chatService, profileService, ch, log)
	matchController := httpapi.NewMatchController(personaService, profileService)

	router := httpapi.SetupRouter(profileController, roomController, matchController, cfg.HTTP.AllowedOrigins, cfg.Auth.JWTSecret)

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.Profile{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

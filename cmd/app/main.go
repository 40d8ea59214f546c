package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "ytgrab/internal/controller/http/v1"
	"ytgrab/internal/domain/usecase"
	"ytgrab/internal/repository/ffmpeg"
	"ytgrab/internal/repository/files"
	"ytgrab/internal/repository/memory"
	"ytgrab/internal/repository/ytdlp"
	redisClient "ytgrab/pkg/client/redis"
	"ytgrab/pkg/middleware"
)

type Config struct {
	HTTPAddr      string
	DownloadDir   string
	IndexPath     string
	WorkerCount   int
	Retention     time.Duration
	SweepInterval time.Duration

	RedisAddr       string
	RedisDB         int
	RateLimit       int
	RateLimitWindow time.Duration
}

func main() {
	cfg := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ytdlp.CheckDependencies(); err != nil {
		log.Fatalf("dependency check failed: %v", err)
	}

	storage, err := files.NewStorage(cfg.DownloadDir, "/yt/downloads")
	if err != nil {
		log.Fatalf("failed to init download directory: %v", err)
	}

	jobs := memory.NewJobRepo()
	uc := usecase.NewDownloadUseCase(jobs, ytdlp.NewClient(), ffmpeg.NewTranscoder(), storage, cfg.WorkerCount)
	handler := v1.NewJobHandler(uc, cfg.IndexPath)

	r := gin.Default()

	yt := r.Group("/yt")
	yt.GET("", handler.Home)
	yt.Static("/downloads", storage.Dir())

	api := yt.Group("/api")
	if cfg.RedisAddr != "" {
		client, err := redisClient.NewRedisClient(ctx, redisClient.Config{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer client.Close()

		api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RedisClient: client,
			Limit:       cfg.RateLimit,
			Window:      cfg.RateLimitWindow,
		}))
		log.Printf("rate limiting enabled: %d requests per %s", cfg.RateLimit, cfg.RateLimitWindow)
	}
	api.POST("/download", handler.StartDownload)
	api.GET("/status/:job_id", handler.GetStatus)
	api.DELETE("/cleanup/:job_id", handler.Cleanup)

	go uc.SweepLoop(ctx, cfg.SweepInterval, cfg.Retention)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		log.Printf("listening on %s, staging downloads in %s", cfg.HTTPAddr, storage.Dir())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		log.Println("no .env file found, using OS environment variables")
	}

	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DownloadDir:   getEnv("DOWNLOAD_DIR", "./downloads"),
		IndexPath:     getEnv("INDEX_PATH", "./web/templates/index.html"),
		WorkerCount:   getEnvInt("WORKER_COUNT", 3),
		Retention:     time.Duration(getEnvInt("RETENTION_MINUTES", 60)) * time.Minute,
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimit:       getEnvInt("RATE_LIMIT", 10),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Fatalf("invalid %s value: %s", key, value)
	}
	return fallback
}

package main

import (
	"MaskFit/internal/config"
	"MaskFit/pkg/landmark"
	"MaskFit/pkg/log"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/redis"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file loaded: %v", err)
	}

	fallback := os.Getenv("DEFAULT_PROFILE")
	if fallback == "" {
		fallback = measure.ProfileFaceWidth
	}

	resultTTL, err := time.ParseDuration(os.Getenv("RESULT_TTL"))
	if err != nil {
		resultTTL = 5 * time.Second
	}

	overlay, _ := strconv.ParseBool(os.Getenv("OVERLAY_LANDMARKS"))

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()
	redisServer := redis.New()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(),
		config.WithRedisServer(redisServer),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithUtils(),
		config.WithProfiles(os.Getenv("MEASUREMENT_PROFILES_FILE"), fallback),
		config.WithLandmarkSource(os.Getenv("LANDMARK_SOURCE"), landmark.DefaultOptions()),
		config.WithResultTTL(resultTTL),
		config.WithLandmarkOverlay(overlay),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")
	if err := server.Shutdown(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}

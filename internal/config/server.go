package config

import (
	"MaskFit/database/postgres"
	sizingHandler "MaskFit/internal/api/sizing/handler"
	sizingRepository "MaskFit/internal/api/sizing/repository"
	sizingService "MaskFit/internal/api/sizing/service"
	"MaskFit/internal/middleware"
	"MaskFit/pkg/landmark"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/redis"
	"MaskFit/pkg/s3"
	"MaskFit/pkg/utils"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	profiles    *measure.Registry
	source      landmark.Source
	resultTTL   time.Duration
	overlay     bool
}

type handler interface {
	Start(srv fiber.Router)
}

const (
	LandmarkSourceNone   = "none"
	LandmarkSourceRemote = "remote"
	LandmarkSourcePigo   = "pigo"
)

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.profiles == nil {
		return nil, fmt.Errorf("measurement profiles are required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return err
		}

		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		if os.Getenv("AWS_BUCKET_NAME") == "" {
			if s.log != nil {
				s.log.Warn("AWS_BUCKET_NAME not set, capture snapshots will not be archived")
			}
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

// WithProfiles registers the built-in profiles plus those found in file.
// An empty file name keeps the built-ins only.
func WithProfiles(file string, fallback string) ServerOption {
	return func(s *Server) error {
		if s.validator == nil {
			s.validator = NewValidator()
		}

		specs := measure.Defaults()
		if file != "" {
			extra, err := measure.LoadFile(s.validator, file)
			if err != nil {
				return fmt.Errorf("failed to load measurement profiles: %w", err)
			}
			specs = append(specs, extra...)
		}

		registry, err := measure.NewRegistry(s.validator, fallback, specs...)
		if err != nil {
			return err
		}
		s.profiles = registry
		return nil
	}
}

// WithLandmarkSource selects where server side frames get their landmarks.
func WithLandmarkSource(kind string, opts landmark.Options) ServerOption {
	return func(s *Server) error {
		switch kind {
		case "", LandmarkSourceNone:
			return nil
		case LandmarkSourceRemote:
			url := os.Getenv("AI_LANDMARK_URL")
			if url == "" {
				return fmt.Errorf("AI_LANDMARK_URL is required for the remote landmark source")
			}
			s.source = landmark.NewRemoteSource(url, opts, s.log)
			return nil
		case LandmarkSourcePigo:
			source, err := landmark.NewPigoSource(os.Getenv("PIGO_CASCADE_DIR"), opts)
			if err != nil {
				return fmt.Errorf("failed to load pigo cascades: %w", err)
			}
			s.source = source
			return nil
		default:
			return fmt.Errorf("unknown landmark source %q", kind)
		}
	}
}

func WithResultTTL(ttl time.Duration) ServerOption {
	return func(s *Server) error {
		s.resultTTL = ttl
		return nil
	}
}

// WithLandmarkOverlay makes every outcome carry the full landmark mesh.
func WithLandmarkOverlay(enabled bool) ServerOption {
	return func(s *Server) error {
		s.overlay = enabled
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Sizing Domain
	sizingRepo := sizingRepository.New(s.db, s.log)
	sizingServices := sizingService.NewSizingService(
		s.log, s.profiles, s.source, sizingRepo, s.redisServer, s.s3Client, s.utils,
		sizingService.WithResultTTL(s.resultTTL),
		sizingService.WithLandmarkOverlay(s.overlay),
	)
	sizingHandlers := sizingHandler.New(s.log, s.validator, s.middleware, sizingServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, sizingHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting requests and releases the landmark source and
// database.
func (s *Server) Shutdown() error {
	err := s.engine.Shutdown()

	if s.source != nil {
		if closeErr := s.source.Close(); closeErr != nil {
			s.log.Errorf("Failed to close landmark source: %v", closeErr)
		}
	}
	if s.db != nil {
		s.db.Close()
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":  "Server is Healthy!",
			"profiles": len(s.profiles.List()),
			"source":   s.source != nil,
		})
	})
}

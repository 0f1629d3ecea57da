package redis

import (
	"MaskFit/internal/entity"
	"MaskFit/pkg/log"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrResultNotFound = errors.New("no recent result for session")

// IRedis caches the latest outcome per capture session. Entries expire so a
// stale recommendation disappears from the display on its own.
type IRedis interface {
	SetOutcome(ctx context.Context, sessionID string, outcome entity.Outcome, ttl time.Duration) error
	GetOutcome(ctx context.Context, sessionID string) (entity.Outcome, error)
}

type redisClient struct {
	client *redis.Client
}

func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

func outcomeKey(sessionID string) string {
	return "maskfit:outcome:" + sessionID
}

func (r *redisClient) SetOutcome(ctx context.Context, sessionID string, outcome entity.Outcome, ttl time.Duration) error {
	data, err := encodeOutcome(outcome)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, outcomeKey(sessionID), data, ttl).Err(); err != nil {
		log.WithRequestID(ctx).WithField("session_id", sessionID).Errorf("Error caching outcome: %v", err)
		return err
	}

	log.WithRequestID(ctx).WithField("session_id", sessionID).Debugf("Cached %s outcome (ttl %v)", outcome.Status, ttl)
	return nil
}

func (r *redisClient) GetOutcome(ctx context.Context, sessionID string) (entity.Outcome, error) {
	val, err := r.client.Get(ctx, outcomeKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Outcome{}, ErrResultNotFound
	} else if err != nil {
		log.WithRequestID(ctx).WithField("session_id", sessionID).Errorf("Error reading outcome: %v", err)
		return entity.Outcome{}, err
	}

	return decodeOutcome(val)
}

func encodeOutcome(outcome entity.Outcome) ([]byte, error) {
	return jsoniter.Marshal(outcome)
}

func decodeOutcome(data []byte) (entity.Outcome, error) {
	var outcome entity.Outcome
	if err := jsoniter.Unmarshal(data, &outcome); err != nil {
		return entity.Outcome{}, fmt.Errorf("decode cached outcome: %w", err)
	}
	return outcome, nil
}

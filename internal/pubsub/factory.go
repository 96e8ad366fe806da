package pubsub

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// New creates a pub/sub backend. bufferSize is the per-subscriber channel
// capacity; zero or negative falls back to the default.
//
// Backend options:
// - "local": in-process pub/sub (default for single instance)
// - "redis": Redis pub/sub (multi-instance deployments)
func New(backend, redisURL string, bufferSize int) (PubSub, error) {
	switch backend {
	case "local", "":
		log.Info().Msg("Using local pub/sub (single instance mode)")
		return NewLocalPubSub(bufferSize), nil

	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
		log.Info().Msg("Using Redis-compatible pub/sub (multi-instance mode)")
		ps, err := NewRedisPubSub(redisURL, bufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis for pub/sub: %w", err)
		}
		return ps, nil

	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, redis)", backend)
	}
}

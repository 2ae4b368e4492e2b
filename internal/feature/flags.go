// Package feature implements redis-backed feature flags. Lookups fail
// closed: any redis error reads as "disabled" so a cache outage never
// turns experimental paths on.
package feature

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	flagKeyPrefix = "feature_flag:"
	flagListKey   = "feature_flags"
)

// Flag is one named switch.
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service manages flags in redis.
type Service struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

// New returns a flag service over the given redis client.
func New(rdb redis.UniversalClient, log *zap.Logger) *Service {
	return &Service{rdb: rdb, log: log.Named("feature.flags")}
}

func flagKey(name string) string { return flagKeyPrefix + name }

// Set creates or updates a flag.
func (s *Service) Set(ctx context.Context, name string, enabled bool, description string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, flagKey(name), map[string]any{
		"enabled":     fmt.Sprintf("%t", enabled),
		"description": description,
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	})
	pipe.SAdd(ctx, flagListKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set flag %s: %w", name, err)
	}
	return nil
}

// IsEnabled reports whether the flag is on. Unknown flags and redis
// failures both read as off.
func (s *Service) IsEnabled(ctx context.Context, name string) bool {
	v, err := s.rdb.HGet(ctx, flagKey(name), "enabled").Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("flag lookup failed, treating as disabled",
				zap.String("flag", name),
				zap.Error(err),
			)
		}
		return false
	}
	return v == "true"
}

// Get returns one flag, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, name string) (*Flag, error) {
	fields, err := s.rdb.HGetAll(ctx, flagKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("get flag %s: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return flagFromFields(name, fields), nil
}

// List returns all flags.
func (s *Service) List(ctx context.Context) ([]Flag, error) {
	names, err := s.rdb.SMembers(ctx, flagListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	flags := make([]Flag, 0, len(names))
	for _, name := range names {
		f, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if f != nil {
			flags = append(flags, *f)
		}
	}
	return flags, nil
}

// Delete removes a flag. Deleting a missing flag is not an error.
func (s *Service) Delete(ctx context.Context, name string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, flagKey(name))
	pipe.SRem(ctx, flagListKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flag %s: %w", name, err)
	}
	return nil
}

func flagFromFields(name string, fields map[string]string) *Flag {
	f := &Flag{
		Name:        name,
		Enabled:     fields["enabled"] == "true",
		Description: fields["description"],
	}
	if ts, err := time.Parse(time.RFC3339, fields["updated_at"]); err == nil {
		f.UpdatedAt = ts
	}
	return f
}

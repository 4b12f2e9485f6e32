package storage

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Soft is the soft-failing view of a Store. Reads that fail report the key
// as absent and writes that fail are dropped; both are logged.
type Soft struct {
	store Store
}

func NewSoft(store Store) *Soft {
	return &Soft{store: store}
}

func (s *Soft) Get(ctx context.Context, key string) (string, bool) {
	if s == nil || s.store == nil {
		return "", false
	}
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("component", "storage").Str("key", key).Msg("storage read failed")
		return "", false
	}
	return v, ok
}

func (s *Soft) Set(ctx context.Context, key string, value string) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Set(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("component", "storage").Str("key", key).Msg("storage write failed")
	}
}

func (s *Soft) Remove(ctx context.Context, key string) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("component", "storage").Str("key", key).Msg("storage remove failed")
	}
}

// Flag reports whether key holds the sentinel value.
func (s *Soft) Flag(ctx context.Context, key string) bool {
	v, ok := s.Get(ctx, key)
	return ok && v == FlagValue
}

// SetFlag stores the sentinel when on is true and removes the key otherwise.
func (s *Soft) SetFlag(ctx context.Context, key string, on bool) {
	if on {
		s.Set(ctx, key, FlagValue)
		return
	}
	s.Remove(ctx, key)
}

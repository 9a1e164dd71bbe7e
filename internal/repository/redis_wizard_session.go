package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/wizard"
)

const wizardSessionKeyPrefix = "wizard:session:"

// RedisWizardSessionStore keeps wizard state between requests.
// Each save refreshes the TTL, so abandoned sessions expire on their own.
type RedisWizardSessionStore struct {
	cache *RedisCacheRepository
	ttl   time.Duration
}

func NewRedisWizardSessionStore(cache *RedisCacheRepository, ttl time.Duration) *RedisWizardSessionStore {
	return &RedisWizardSessionStore{cache: cache, ttl: ttl}
}

// Load returns domain.ErrNotFound for unknown or expired sessions
func (s *RedisWizardSessionStore) Load(ctx context.Context, sessionID string) (*wizard.State, error) {
	var state wizard.State
	if err := s.cache.Get(ctx, wizardSessionKeyPrefix+sessionID, &state); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load wizard session: %w", err)
	}
	if state.AddOns == nil {
		state.AddOns = map[string]int{}
	}
	if state.SubscriptionAddOns == nil {
		state.SubscriptionAddOns = map[string]int{}
	}
	return &state, nil
}

func (s *RedisWizardSessionStore) Save(ctx context.Context, state *wizard.State) error {
	if err := s.cache.Set(ctx, wizardSessionKeyPrefix+state.SessionID, state, s.ttl); err != nil {
		return fmt.Errorf("failed to save wizard session: %w", err)
	}
	return nil
}

func (s *RedisWizardSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, wizardSessionKeyPrefix+sessionID)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/cache"
)

// PreferenceRepository keeps saved list filters in Redis under prefs:<user>:<view>.
type PreferenceRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewPreferenceRepository constructs the store. A zero ttl keeps filters forever.
func NewPreferenceRepository(client redis.UniversalClient, ttl time.Duration) *PreferenceRepository {
	return &PreferenceRepository{client: client, ttl: ttl}
}

func preferenceKey(userID, view string) string {
	return cache.Key("prefs", userID, view)
}

// Load returns the saved filter or nil when nothing is stored.
func (r *PreferenceRepository) Load(ctx context.Context, userID, view string) (*models.FilterState, error) {
	if r.client == nil {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, preferenceKey(userID, view)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load preference: %w", err)
	}
	var state models.FilterState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode preference: %w", err)
	}
	return &state, nil
}

// Save overwrites the saved filter.
func (r *PreferenceRepository) Save(ctx context.Context, userID string, state models.FilterState) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode preference: %w", err)
	}
	if err := r.client.Set(ctx, preferenceKey(userID, state.View), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

// Delete forgets the saved filter.
func (r *PreferenceRepository) Delete(ctx context.Context, userID, view string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, preferenceKey(userID, view)).Err(); err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakePreferenceStore struct {
	states map[string]models.FilterState
	err    error
}

func (f *fakePreferenceStore) Load(ctx context.Context, userID, view string) (*models.FilterState, error) {
	if f.err != nil {
		return nil, f.err
	}
	state, ok := f.states[userID+"/"+view]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (f *fakePreferenceStore) Save(ctx context.Context, userID string, state models.FilterState) error {
	if f.err != nil {
		return f.err
	}
	f.states[userID+"/"+state.View] = state
	return nil
}

func (f *fakePreferenceStore) Delete(ctx context.Context, userID, view string) error {
	delete(f.states, userID+"/"+view)
	return nil
}

func TestPreferenceRoundTrip(t *testing.T) {
	store := &fakePreferenceStore{states: map[string]models.FilterState{}}
	svc := NewPreferenceService(store, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	empty, err := svc.Get(ctx, "u-1", "Submissions")
	require.NoError(t, err)
	assert.Equal(t, "submissions", empty.View)
	assert.Empty(t, empty.Statuses)

	saved, err := svc.Save(ctx, "u-1", "submissions", dto.PreferenceRequest{
		Search:    "  sanitation ",
		Statuses:  []models.Status{models.StatusLate, models.StatusForRevision, models.StatusLate},
		SortOrder: "desc",
		PageSize:  50,
	})
	require.NoError(t, err)
	assert.Equal(t, "sanitation", saved.Search)
	assert.Equal(t, []models.Status{models.StatusLate, models.StatusForRevision}, saved.Statuses)
	assert.Equal(t, fixedNow, saved.UpdatedAt)

	loaded, err := svc.Get(ctx, "u-1", "submissions")
	require.NoError(t, err)
	assert.Equal(t, *saved, *loaded)

	require.NoError(t, svc.Reset(ctx, "u-1", "submissions"))
	assert.Empty(t, store.states)
}

func TestPreferenceValidation(t *testing.T) {
	svc := NewPreferenceService(&fakePreferenceStore{states: map[string]models.FilterState{}}, nil, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "u-1", "../etc")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Save(ctx, "u-1", "inbox", dto.PreferenceRequest{Statuses: []models.Status{"Overdue"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Save(ctx, "u-1", "inbox", dto.PreferenceRequest{SortOrder: "sideways"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Save(ctx, "u-1", "inbox", dto.PreferenceRequest{PageSize: 500})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPreferenceStoreFailure(t *testing.T) {
	svc := NewPreferenceService(&fakePreferenceStore{err: assert.AnError}, nil, nil)

	_, err := svc.Get(context.Background(), "u-1", "inbox")
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
}

package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/media"
)

type fakeUserStore struct {
	profiles    map[string]*models.UserProfile
	credentials map[string]repository.CredentialChanges
	disabled    map[string]string
	deleted     []string
	avatars     map[string]string
	created     []*models.Identity
	createErr   error
	updateErr   error
	listTotal   int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		profiles:    map[string]*models.UserProfile{},
		credentials: map[string]repository.CredentialChanges{},
		disabled:    map[string]string{},
		avatars:     map[string]string{},
	}
}

func (f *fakeUserStore) UpdateCredentials(ctx context.Context, id string, changes repository.CredentialChanges, at time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.profiles[id]; !ok {
		return sql.ErrNoRows
	}
	f.credentials[id] = changes
	return nil
}

func (f *fakeUserStore) CreateUser(ctx context.Context, identity *models.Identity, profile *models.UserProfile) error {
	if f.createErr != nil {
		return f.createErr
	}
	identity.ID = "new-user"
	profile.ID = identity.ID
	profile.Email = identity.Email
	f.created = append(f.created, identity)
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeUserStore) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if profile, ok := f.profiles[id]; ok {
		return profile, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, int, error) {
	out := make([]models.UserProfile, 0, len(f.profiles))
	for _, profile := range f.profiles {
		out = append(out, *profile)
	}
	return out, f.listTotal, nil
}

func (f *fakeUserStore) UpdateAvatar(ctx context.Context, id, url string, at time.Time) error {
	if _, ok := f.profiles[id]; !ok {
		return sql.ErrNoRows
	}
	f.avatars[id] = url
	return nil
}

func (f *fakeUserStore) Disable(ctx context.Context, id, deletedBy string, at time.Time) error {
	if _, ok := f.profiles[id]; !ok {
		return sql.ErrNoRows
	}
	f.disabled[id] = deletedBy
	delete(f.profiles, id)
	return nil
}

func (f *fakeUserStore) DeletePermanently(ctx context.Context, id string) error {
	if _, ok := f.profiles[id]; !ok {
		return sql.ErrNoRows
	}
	f.deleted = append(f.deleted, id)
	delete(f.profiles, id)
	return nil
}

type fakeUploader struct {
	folder      string
	filename    string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.folder, f.filename, f.contentType = folder, filename, contentType
	f.body, _ = io.ReadAll(r)
	return "https://media.example.gov/" + folder + "/" + filename, nil
}

func newUserServiceForTest(store *fakeUserStore, audit *fakeAudit, uploader mediaUploader) *UserService {
	svc := NewUserService(store, audit, uploader, nil, nil, UserServiceConfig{Avatar: media.AvatarOptions{MaxPixels: 64, Quality: 70}})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func strPtr(v string) *string { return &v }

func TestUpdateCredentialsAllowsSelfAndAdmin(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1", Role: models.RoleLGU}
	audit := &fakeAudit{}
	svc := newUserServiceForTest(store, audit, nil)

	err := svc.UpdateCredentials(context.Background(), "u-1", models.RoleLGU, dto.UpdateCredentialsRequest{UID: "u-1", Password: strPtr("new-password")})
	require.NoError(t, err)
	changes := store.credentials["u-1"]
	require.NotNil(t, changes.PasswordHash)
	assert.Nil(t, changes.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*changes.PasswordHash), []byte("new-password")))

	err = svc.UpdateCredentials(context.Background(), "admin-1", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "u-1", Email: strPtr(" New@Example.GOV ")})
	require.NoError(t, err)
	assert.Equal(t, "new@example.gov", *store.credentials["u-1"].Email)

	require.Len(t, audit.logs, 2)
	assert.Equal(t, models.AuditActionCredentialsUpdate, audit.logs[1].Action)
	assert.Equal(t, "admin-1", *audit.logs[1].UserID)
	assert.NotContains(t, string(audit.logs[0].NewValues), "new-password")
}

func TestUpdateCredentialsRejectsOtherUsers(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	svc := newUserServiceForTest(store, &fakeAudit{}, nil)

	err := svc.UpdateCredentials(context.Background(), "u-2", models.RoleEvaluator, dto.UpdateCredentialsRequest{UID: "u-1", Email: strPtr("x@example.gov")})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, store.credentials)
}

func TestUpdateCredentialsValidation(t *testing.T) {
	svc := newUserServiceForTest(newFakeUserStore(), &fakeAudit{}, nil)

	err := svc.UpdateCredentials(context.Background(), "u-1", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "u-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	err = svc.UpdateCredentials(context.Background(), "u-1", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "u-1", Email: strPtr("not-an-email")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	err = svc.UpdateCredentials(context.Background(), "u-1", models.RoleAdmin, dto.UpdateCredentialsRequest{Email: strPtr("a@example.gov")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUpdateCredentialsMapsStoreErrors(t *testing.T) {
	store := newFakeUserStore()
	svc := newUserServiceForTest(store, &fakeAudit{}, nil)

	err := svc.UpdateCredentials(context.Background(), "admin", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "ghost", Email: strPtr("a@example.gov")})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	store.updateErr = repository.ErrDuplicate
	err = svc.UpdateCredentials(context.Background(), "admin", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "u-1", Email: strPtr("a@example.gov")})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	store.updateErr = errors.New("deadlock detected")
	err = svc.UpdateCredentials(context.Background(), "admin", models.RoleAdmin, dto.UpdateCredentialsRequest{UID: "u-1", Email: strPtr("a@example.gov")})
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
}

func TestDeleteDisablesOrRemoves(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	store.profiles["u-2"] = &models.UserProfile{ID: "u-2"}
	audit := &fakeAudit{}
	svc := newUserServiceForTest(store, audit, nil)

	require.NoError(t, svc.Delete(context.Background(), "admin-1", models.RoleAdmin, dto.DeleteUserRequest{UID: "u-1"}))
	assert.Equal(t, "admin-1", store.disabled["u-1"])
	assert.Empty(t, store.deleted)

	require.NoError(t, svc.Delete(context.Background(), "admin-1", models.RoleAdmin, dto.DeleteUserRequest{UID: "u-2", Permanent: true}))
	assert.Equal(t, []string{"u-2"}, store.deleted)

	require.Len(t, audit.logs, 2)
	assert.Equal(t, models.AuditActionUserDisable, audit.logs[0].Action)
	assert.Equal(t, models.AuditActionUserDelete, audit.logs[1].Action)

	err := svc.Delete(context.Background(), "admin-1", models.RoleAdmin, dto.DeleteUserRequest{UID: "u-1", Permanent: true})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeleteRequiresAdminAndForbidsSelf(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	svc := newUserServiceForTest(store, &fakeAudit{}, nil)

	err := svc.Delete(context.Background(), "ev-1", models.RoleEvaluator, dto.DeleteUserRequest{UID: "u-1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	err = svc.Delete(context.Background(), "u-1", models.RoleAdmin, dto.DeleteUserRequest{UID: "u-1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Contains(t, store.profiles, "u-1")
}

func TestCreateUserHashesPasswordAndAudits(t *testing.T) {
	store := newFakeUserStore()
	audit := &fakeAudit{}
	svc := newUserServiceForTest(store, audit, nil)

	profile, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "LGU@Example.gov",
		Password: "long-enough",
		FullName: "Municipality of Example",
		Role:     models.RoleLGU,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "lgu@example.gov", profile.Email)
	require.Len(t, store.created, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.created[0].PasswordHash), []byte("long-enough")))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.logs[0].Action)

	store.createErr = repository.ErrDuplicate
	_, err = svc.Create(context.Background(), dto.CreateUserRequest{Email: "lgu@example.gov", Password: "long-enough", FullName: "Dup", Role: models.RoleLGU}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(context.Background(), dto.CreateUserRequest{Email: "x@example.gov", Password: "long-enough", FullName: "Bad", Role: "SUPERUSER"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestListUsersDefaultsPagination(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	store.listTotal = 41
	svc := newUserServiceForTest(store, &fakeAudit{}, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 41}, pagination)
}

func TestUploadAvatarNormalisesToWebP(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	uploader := &fakeUploader{}
	svc := newUserServiceForTest(store, &fakeAudit{}, uploader)

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		for y := 0; y < 100; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	url, err := svc.UploadAvatar(context.Background(), "u-1", "portrait.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.gov/avatars/portrait.webp", url)
	assert.Equal(t, "image/webp", uploader.contentType)
	assert.Equal(t, "RIFF", string(uploader.body[:4]))
	assert.Equal(t, url, store.avatars["u-1"])
}

func TestUploadAvatarRejectsNonImagesAndPropagatesUploadErrors(t *testing.T) {
	store := newFakeUserStore()
	store.profiles["u-1"] = &models.UserProfile{ID: "u-1"}
	uploader := &fakeUploader{}
	svc := newUserServiceForTest(store, &fakeAudit{}, uploader)

	_, err := svc.UploadAvatar(context.Background(), "u-1", "notes.txt", bytes.NewBufferString("plain text"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	uploader.err = appErrors.Upload(errors.New("503"), "media host rejected upload")
	_, err = svc.UploadAvatar(context.Background(), "u-1", "a.png", &buf)
	assert.ErrorIs(t, err, appErrors.ErrUpload)
	assert.Empty(t, store.avatars)
}

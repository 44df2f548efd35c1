package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakeIdentityStore struct {
	identities map[string]*models.Identity
	profiles   map[string]*models.UserProfile
	linked     map[string]string
	lastLogin  map[string]time.Time
	findErr    error
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		identities: map[string]*models.Identity{},
		profiles:   map[string]*models.UserProfile{},
		linked:     map[string]string{},
		lastLogin:  map[string]time.Time{},
	}
}

func (f *fakeIdentityStore) add(t *testing.T, id, email, password string, role models.UserRole) {
	t.Helper()
	hash := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(raw)
	}
	f.identities[id] = &models.Identity{ID: id, Email: email, PasswordHash: hash}
	f.profiles[id] = &models.UserProfile{ID: id, Email: email, FullName: "User " + id, Role: role}
}

func (f *fakeIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, identity := range f.identities {
		if identity.Email == email {
			return identity, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeIdentityStore) FindIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	if identity, ok := f.identities[id]; ok {
		return identity, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeIdentityStore) FindIdentityByGoogleSubject(ctx context.Context, subject string) (*models.Identity, error) {
	for _, identity := range f.identities {
		if identity.GoogleSubject != nil && *identity.GoogleSubject == subject {
			return identity, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeIdentityStore) LinkGoogleSubject(ctx context.Context, id, subject string, at time.Time) error {
	f.linked[id] = subject
	f.identities[id].GoogleSubject = &subject
	return nil
}

func (f *fakeIdentityStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeIdentityStore) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if profile, ok := f.profiles[id]; ok {
		return profile, nil
	}
	return nil, sql.ErrNoRows
}

type fakeAudit struct {
	logs []*models.AuditLog
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeGoogle struct {
	identity *GoogleIdentity
	err      error
}

func (f *fakeGoogle) Verify(idToken string) (*GoogleIdentity, error) {
	return f.identity, f.err
}

var fixedNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newIdentityService(store *fakeIdentityStore, audit *fakeAudit, google googleVerifier) *IdentityService {
	svc := NewIdentityService(store, audit, google, nil, nil, IdentityConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "agency-portal",
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "correct horse", models.RoleLGU)
	audit := &fakeAudit{}
	svc := newIdentityService(store, audit, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "lgu@example.gov", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleLGU, resp.User.Role)
	assert.Equal(t, fixedNow, store.lastLogin["u-1"])
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)

	claims, err := svc.VerifyToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleLGU, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "correct horse", models.RoleLGU)
	svc := newIdentityService(store, &fakeAudit{}, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lgu@example.gov", Password: "battery staple"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.gov", Password: "x"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "correct horse", models.RoleLGU)
	store.identities["u-1"].Disabled = true
	svc := newIdentityService(store, &fakeAudit{}, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lgu@example.gov", Password: "correct horse"})
	assert.ErrorIs(t, err, appErrors.ErrAccountDisabled)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc := newIdentityService(newFakeIdentityStore(), &fakeAudit{}, nil)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLoginStoreFailureIsPersistenceError(t *testing.T) {
	store := newFakeIdentityStore()
	store.findErr = errors.New("connection refused")
	svc := newIdentityService(store, &fakeAudit{}, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lgu@example.gov", Password: "pw"})
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
}

func TestVerifyTokenRejectsExpiredAndTampered(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "correct horse", models.RoleLGU)
	svc := newIdentityService(store, &fakeAudit{}, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "lgu@example.gov", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.VerifyToken(resp.AccessToken + "x")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	svc.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
	_, err = svc.VerifyToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestVerifyTokenRejectsOtherSigningMethods(t *testing.T) {
	svc := newIdentityService(newFakeIdentityStore(), &fakeAudit{}, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &models.JWTClaims{UserID: "u-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestLoginWithGoogleLinksExistingAccount(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "", models.RoleLGU)
	google := &fakeGoogle{identity: &GoogleIdentity{Subject: "g-123", Email: "lgu@example.gov"}}
	svc := newIdentityService(store, &fakeAudit{}, google)

	resp, err := svc.LoginWithGoogle(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", resp.User.ID)
	assert.Equal(t, "g-123", store.linked["u-1"])

	delete(store.linked, "u-1")
	_, err = svc.LoginWithGoogle(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	require.NoError(t, err)
	assert.Empty(t, store.linked, "already linked accounts are found by subject")
}

func TestLoginWithGoogleRejectsUnknownAccountAndBadToken(t *testing.T) {
	store := newFakeIdentityStore()
	svc := newIdentityService(store, &fakeAudit{}, &fakeGoogle{identity: &GoogleIdentity{Subject: "g-9", Email: "stranger@example.com"}})

	_, err := svc.LoginWithGoogle(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	svc = newIdentityService(store, &fakeAudit{}, &fakeGoogle{err: errors.New("bad signature")})
	_, err = svc.LoginWithGoogle(context.Background(), models.GoogleLoginRequest{IDToken: "token"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestMeReturnsProfile(t *testing.T) {
	store := newFakeIdentityStore()
	store.add(t, "u-1", "lgu@example.gov", "pw", models.RoleViewer)
	svc := newIdentityService(store, &fakeAudit{}, nil)

	info, err := svc.Me(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, info.Role)

	_, err = svc.Me(context.Background(), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

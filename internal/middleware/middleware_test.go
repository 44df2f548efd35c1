package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/service"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/logger"
	"github.com/noah-isme/agency-portal-api/pkg/middleware/requestid"
)

type stubVerifier map[string]*models.JWTClaims

func (s stubVerifier) VerifyToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrInvalidToken
}

type stubAuditWriter struct {
	logs []*models.AuditLog
	err  error
}

func (s *stubAuditWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

var tokens = stubVerifier{
	"admin": {UserID: "admin-1", Role: models.RoleAdmin},
	"lgu":   {UserID: "u-1", Role: models.RoleLGU},
}

func perform(router *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWT(tokens), func(c *gin.Context) {
		assert.Equal(t, CurrentUser(c).UserID, c.GetString(logger.UserIDKey))
		c.String(http.StatusOK, CurrentUser(c).UserID)
	})

	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/me", "forged").Code)

	rec := perform(router, http.MethodGet, "/me", "lgu")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestOptionalJWTPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/public", OptionalJWT(tokens), func(c *gin.Context) {
		if claims := CurrentUser(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	assert.Equal(t, "anonymous", perform(router, http.MethodGet, "/public", "forged").Body.String())
	assert.Equal(t, "admin-1", perform(router, http.MethodGet, "/public", "admin").Body.String())
}

func TestRBACAllowsRolesAndSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/users/:id", JWT(tokens), RBAC(string(models.RoleAdmin), RoleSelf), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/programs", JWT(tokens), RequireRoles(models.RoleAdmin, models.RoleEvaluator), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/users/u-2", "admin").Code)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/users/u-1", "lgu").Code)
	assert.Equal(t, http.StatusForbidden, perform(router, http.MethodGet, "/users/u-2", "lgu").Code)
	assert.Equal(t, http.StatusForbidden, perform(router, http.MethodGet, "/programs", "lgu").Code)

	bare := gin.New()
	bare.GET("/x", RBAC(string(models.RoleAdmin)), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(bare, http.MethodGet, "/x", "").Code)
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &stubAuditWriter{}
	router := gin.New()
	router.DELETE("/programs/:id", JWT(tokens), Audit(writer, nil, models.AuditActionProgramDelete, "program"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, perform(router, http.MethodDelete, "/programs/p-1", "admin").Code)
	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodDelete, "/programs/missing", "admin").Code)

	require.Len(t, writer.logs, 1)
	entry := writer.logs[0]
	assert.Equal(t, models.AuditActionProgramDelete, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "p-1", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"path":"/programs/:id"`)

	writer.err = assert.AnError
	assert.Equal(t, http.StatusNoContent, perform(router, http.MethodDelete, "/programs/p-2", "admin").Code)
}

func TestResponseMetaCarriesRequestIDAndCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/dashboard", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, meta)
	assert.Equal(t, "req-42", meta[MetaRequestID])
	assert.Equal(t, true, meta[MetaCacheHit])
	assert.Contains(t, meta, MetaProcessingTime)
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
	SetCacheHit(c, false)
	assert.Equal(t, false, ExtractMeta(c)[MetaCacheHit])
	assert.Nil(t, ExtractMeta(nil))
}

func TestMetricsSkipsProbesAndBoundsUnmatchedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/programs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/programs/p-1", "/programs/p-2", "/wp-admin/1", "/wp-admin/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, uint64(4), metrics.Snapshot().RequestsTotal)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `path="/programs/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "wp-admin")
	assert.NotContains(t, body, `path="/health"`)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/transferscope/portal-api/internal/models"
)

// deckRouter mirrors the production gating for the presentation routes:
// reads sit behind RequireApproved, mutations behind RequireAdmin.
func deckRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	authSvc := testAuthService()
	router := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	approved := router.Group("", JWT(authSvc), RequireVerified(), RequireApproved())
	approved.GET("/presentations", ok)

	adminOnly := router.Group("", JWT(authSvc), RequireVerified(), RequireAdmin())
	adminOnly.POST("/presentations", ok)
	adminOnly.DELETE("/presentations/:id", ok)

	return router
}

func deckRequest(t *testing.T, method, path string, role models.UserRole, verified bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "u1", role, verified))
	recorder := httptest.NewRecorder()
	deckRouter().ServeHTTP(recorder, req)
	return recorder
}

func TestPendingUserCanListDecks(t *testing.T) {
	recorder := deckRequest(t, http.MethodGet, "/presentations", models.RolePending, true)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestPendingUserCannotRequestDeck(t *testing.T) {
	recorder := deckRequest(t, http.MethodPost, "/presentations", models.RolePending, true)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestAdminCanRequestAndDeleteDeck(t *testing.T) {
	post := deckRequest(t, http.MethodPost, "/presentations", models.RoleAdmin, true)
	assert.Equal(t, http.StatusNoContent, post.Code)

	del := deckRequest(t, http.MethodDelete, "/presentations/p1", models.RoleAdmin, true)
	assert.Equal(t, http.StatusNoContent, del.Code)
}

func TestUnverifiedUserBlockedBeforeRoleCheck(t *testing.T) {
	recorder := deckRequest(t, http.MethodGet, "/presentations", models.RoleAdmin, false)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

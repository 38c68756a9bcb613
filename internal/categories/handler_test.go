package categories

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/internal/identity"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			uid, _ := strconv.ParseInt(req.Header.Get("X-Test-User"), 10, 64)
			ctx := identity.ContextWithPrincipal(req.Context(), identity.Principal{UserID: uid})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/categories", NewHandler(nil, svc).MountRoutes)
	return r
}

func doRequest(h http.Handler, method, path string, user int64, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", strconv.FormatInt(user, 10))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCategoryEndpoints(t *testing.T) {
	h := newTestRouter(NewService(newMemoryRepo(), nil, nil))

	rr := doRequest(h, http.MethodPost, "/categories/", alice, `{"name":"Food"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created CategoryResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "Food", created.Name)
	assert.Equal(t, alice, created.UserID)

	rr = doRequest(h, http.MethodPost, "/categories/", alice, `{"name":"FOOD"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Category already exists")

	rr = doRequest(h, http.MethodPost, "/categories/", alice, `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	path := "/categories/" + strconv.FormatInt(created.ID, 10)

	rr = doRequest(h, http.MethodGet, path, bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodPut, path, alice, `{"name":"Groceries"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Groceries")

	rr = doRequest(h, http.MethodGet, "/categories/", bob, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = doRequest(h, http.MethodGet, "/categories/?limit=abc", alice, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodDelete, path, bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodDelete, path, alice, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(h, http.MethodGet, path, alice, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodGet, "/categories/not-a-number", alice, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

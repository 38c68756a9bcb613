package expenses

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
	r.Route("/expenses", NewHandler(nil, svc).MountRoutes)
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

func TestExpenseEndpoints(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCategory(10, alice, "Food")
	repo.addCategory(20, bob, "Other")
	h := newTestRouter(NewService(repo, nil, nil))

	rr := doRequest(h, http.MethodPost, "/expenses/", alice,
		`{"title":"Lunch","amount":20,"date":"2025-03-03","category_id":20}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Category not found")

	rr = doRequest(h, http.MethodPost, "/expenses/", alice,
		`{"title":"Lunch","amount":20,"date":"03/03/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodPost, "/expenses/", alice,
		`{"title":"Lunch","amount":20,"date":"2025-03-03","category_id":10}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created ExpenseResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "2025-03-03", created.Date.Format("2006-01-02"))
	require.NotNil(t, created.Category)
	assert.Equal(t, "Food", created.Category.Name)

	path := "/expenses/" + strconv.FormatInt(created.ID, 10)

	rr = doRequest(h, http.MethodGet, path, bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodPut, path, alice, `{"title":"Team lunch"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Team lunch")

	rr = doRequest(h, http.MethodGet, "/expenses/?start_date=2025-03-01&end_date=2025-03-31", alice, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []ExpenseResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 1)

	rr = doRequest(h, http.MethodGet, "/expenses/?start_date=yesterday", alice, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for _, p := range []string{"/expenses/summary/?month=3&year=2025", "/expenses/summary/monthly?month=3&year=2025"} {
		rr = doRequest(h, http.MethodGet, p, alice, "")
		require.Equal(t, http.StatusOK, rr.Code, p)
		assert.JSONEq(t, `[{"category":"Food","total":20}]`, rr.Body.String())
	}

	rr = doRequest(h, http.MethodGet, "/expenses/summary/?month=3&year=2025", bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodGet, "/expenses/summary/?month=13&year=2025", alice, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodGet, "/expenses/summary/", alice, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodDelete, path, alice, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = doRequest(h, http.MethodGet, path, alice, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateExpenseValidation(t *testing.T) {
	repo := newMemoryRepo()
	h := newTestRouter(NewService(repo, nil, nil))

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing amount", `{"title":"Lunch","date":"2025-03-03"}`, "amount"},
		{"null amount", `{"title":"Lunch","amount":null,"date":"2025-03-03"}`, "amount"},
		{"blank title", `{"title":"   ","amount":5,"date":"2025-03-03"}`, "title"},
		{"amount too large", `{"title":"Lunch","amount":1e12,"date":"2025-03-03"}`, "amount"},
		{"amount too small", `{"title":"Lunch","amount":-1e13,"date":"2025-03-03"}`, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(h, http.MethodPost, "/expenses/", alice, tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			var problem struct {
				Errors map[string]string `json:"errors"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
			assert.Contains(t, problem.Errors, tc.field)
		})
	}
	assert.Empty(t, repo.expenses)

	rr := doRequest(h, http.MethodPost, "/expenses/", alice, `{"title":"  Lunch ","amount":0,"date":"2025-03-03"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created ExpenseResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "Lunch", created.Title)

	path := "/expenses/" + strconv.FormatInt(created.ID, 10)
	rr = doRequest(h, http.MethodPut, path, alice, `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(h, http.MethodPut, path, alice, `{"amount":2e12}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(h, http.MethodGet, path, alice, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"Lunch"`)
}

func TestSummaryReportsOnlyFailingParameter(t *testing.T) {
	h := newTestRouter(NewService(newMemoryRepo(), nil, nil))

	cases := []struct {
		query string
		want  map[string]string
	}{
		{"?year=2025", map[string]string{"month": "is required"}},
		{"?month=march&year=2025", map[string]string{"month": "must be an integer"}},
		{"?month=3&year=soon", map[string]string{"year": "must be an integer"}},
		{"", map[string]string{"month": "is required", "year": "is required"}},
	}
	for _, tc := range cases {
		rr := doRequest(h, http.MethodGet, "/expenses/summary/"+tc.query, alice, "")
		require.Equal(t, http.StatusBadRequest, rr.Code, tc.query)
		var problem struct {
			Errors map[string]string `json:"errors"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
		assert.Equal(t, tc.want, problem.Errors, tc.query)
	}
}

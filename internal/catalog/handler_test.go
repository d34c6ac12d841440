package catalog

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func postBulk(t *testing.T, router chi.Router, contentType, body, requestID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/bulk?request_id="+requestID, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestBulkUploadDuplicateRequestIDConflicts(t *testing.T) {
	router := newTestRouter(t, NewService(newMemoryRepo(), newMemoryIdempotency(), nil))
	body := `[{"name":"Frame A","category":"Frames","stock":5,"is_active":true}]`

	rr := postBulk(t, router, "application/json", body, "req-dup")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = postBulk(t, router, "application/json", body, "req-dup")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "already processed")
}

func TestBulkUploadAcceptsJSONWithCharset(t *testing.T) {
	router := newTestRouter(t, NewService(newMemoryRepo(), nil, nil))
	body := `[{"name":"Frame A","category":"Frames","stock":5,"is_active":true}]`

	rr := postBulk(t, router, "application/json; charset=utf-8", body, "req-charset")
	require.Equal(t, http.StatusCreated, rr.Code)
}

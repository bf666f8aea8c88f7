package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, inventory.UseCase) {
	t.Helper()
	log := logger.NewNop()
	uc := usecase.NewInventoryUseCase(repository.NewMemoryRepository(), nil, nil, nil, log, usecase.Options{
		RetryBackoff: time.Millisecond,
	})
	_, err := uc.SyncFromCatalog(context.Background(), []dto.CatalogItem{
		{ProductID: "p1", Name: "Widget", SKU: "WG-1", Stock: 10, ReorderLevel: 2},
		{ProductID: "p2", Name: "Gadget", SKU: "GD-1", Stock: 0},
	})
	require.NoError(t, err)
	return NewHTTPApp(NewHTTPHandler(uc, log)), uc
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (*http.Response, APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var out APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHTTPHealthCheck(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestHTTPGetInventory(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/inventory/p1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, "p1", data["product_id"])
	assert.EqualValues(t, 10, data["available_quantity"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/inventory/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestHTTPListAndSummary(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/inventory?out_of_stock=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].(map[string]interface{})["product_id"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/inventory/summary", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := body.Data.(map[string]interface{})
	assert.EqualValues(t, 2, summary["total_records"])
	assert.EqualValues(t, 1, summary["out_of_stock"])
}

func TestHTTPAdjust(t *testing.T) {
	app, uc := newTestApp(t)
	headers := map[string]string{"X-User-ID": "admin-1"}

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/inventory/adjust",
		`{"product_id":"p1","value":-3,"action_type":"removal","reason":"damaged"}`, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stock adjusted", body.Message)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/inventory/adjust",
		`{"product_id":"p1","value":7,"mode":"absolute"}`, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stock unchanged", body.Message)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/inventory/adjust",
		`{"product_id":"p1","value":-50}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", body.Error.Code)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/inventory/adjust", `{not json`, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	history, err := uc.GetHistory(context.Background(), &dto.MovementFilters{ProductID: "p1", Newest: true})
	require.NoError(t, err)
	require.NotNil(t, history.Movements[0].Actor)
	assert.Equal(t, "admin-1", *history.Movements[0].Actor)
}

func TestHTTPBulkAdjust(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/inventory/bulk-adjust",
		`{"items":[{"product_id":"p1","delta":5},{"product_id":"p2","delta":-1}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["successful"])
	assert.EqualValues(t, 1, data["failed"])
}

func TestHTTPHistory(t *testing.T) {
	app, _ := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/api/v1/inventory/adjust", `{"product_id":"p1","value":4,"action_type":"addition"}`, nil)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/inventory/history?product_id=p1&sort=newest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]interface{})
	movements := data["movements"].([]interface{})
	require.Len(t, movements, 2)
	assert.Equal(t, "addition", movements[0].(map[string]interface{})["action_type"])
	stats := data["statistics"].(map[string]interface{})
	assert.EqualValues(t, 4, stats["total_additions"])
	assert.EqualValues(t, 10, stats["total_synced"])

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/inventory/history?date_from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/inventory/history?date_from=2024-02-02&date_to=2024-02-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPExport(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/history/export?product_id=p1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/csv")
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "inventory-history-")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,created_at,product_id"))

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/inventory/history/export?format=xml", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPUnknownRoute(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v2/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestParseDate(t *testing.T) {
	to, err := parseDate("2024-02-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 23, 59, 59, 999999999, time.UTC), *to)

	from, err := parseDate("2024-02-01T10:00:00Z", false)
	require.NoError(t, err)
	assert.Equal(t, 10, from.Hour())

	empty, err := parseDate("", false)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

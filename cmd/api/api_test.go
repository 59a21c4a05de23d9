package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/db"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/push"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/store"
	"github.com/jmoiron/sqlx"
)

const testKey = "push-key"

func newTestApp(t *testing.T) (*application, *sqlx.DB) {
	t.Helper()
	conn := db.OpenTestDB(t)
	storage := store.NewStorage(conn)
	docs := docstore.NewMemory()
	app := &application{
		config:  config{push: pushConfig{apiKey: testKey}, corsOrigins: []string{"*"}},
		store:   *storage,
		reports: report.NewRepository(docs),
		pusher:  push.New(push.Config{Log: storage.PushLog, DryRun: true}),
		logger:  logger.Discard(),
	}
	return app, conn
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var samplePayload = map[string]any{
	"clientName": "acme",
	"fromDate":   "2024-05-01T00:00:00.000Z",
	"branch":     []map[string]any{{"sdscode": "B1", "name": "Main"}},
	"member":     []map[string]any{{"modules": "Members", "scheme_code": "M1", "upto_month_count": ""}},
	"deposit":    []map[string]any{{"modules": "Deposits", "scheme_code": "D1", "upto_month_amount": 10}},
	"jewel":      []map[string]any{{"loan_count": 2}},
	"safety":     map[string]any{"strong_room": "Yes"},
}

func TestSaveAndGetReport(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.mount()

	rec := do(t, h, http.MethodGet, "/last-submitted-data", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/save-report", samplePayload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved SaveReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.True(t, saved.Success)
	assert.Equal(t, store.SubmissionFirst, saved.Data.SubmissionType)
	assert.Equal(t, "2024-05-01", saved.Data.ReportDate)

	rec = do(t, h, http.MethodPost, "/get-report", map[string]string{"clientName": "acme", "fromDate": "2024-05-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p report.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "acme", p.ClientName)
	require.Len(t, p.Member, 1)
	assert.Equal(t, "M1", p.Member[0].String("scheme_code"))
	assert.Equal(t, "Yes", p.Safety.StrongRoom)

	rec = do(t, h, http.MethodPost, "/get-report", map[string]string{"clientName": "acme", "fromDate": "2024-06-01"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/get-report", map[string]string{"clientName": "acme", "fromDate": "2024-06-01", "mode": "latest"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/get-report", map[string]string{"clientName": "acme", "fromDate": "2024-06-01", "mode": "oldest"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/last-submitted-data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []store.SubmissionLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestSaveReportErrors(t *testing.T) {
	app, conn := newTestApp(t)
	h := app.mount()

	rec := do(t, h, http.MethodPost, "/save-report", map[string]any{"clientName": "acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/save-report", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid request payload"}`, rr.Body.String())

	_, err := conn.Exec(`DROP TABLE jewel_data`)
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/save-report", samplePayload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Database error"}`, rec.Body.String())
}

func TestPushRoutes(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.mount()

	rec := do(t, h, http.MethodPost, "/save-report", samplePayload)
	require.Equal(t, http.StatusOK, rec.Code)

	body := map[string]any{"clientNames": []string{"ghost", "acme"}, "fromDate": "2024-05-01"}

	rec = do(t, h, http.MethodPost, "/push/local", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/push/local", body, "x-api-key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/push/local", body, "x-api-key", testKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Source        string           `json:"source"`
		Mode          string           `json:"mode"`
		Results       []map[string]any `json:"results"`
		FailedClients []string         `json:"failedClients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, store.SourceLocal, out.Source)
	assert.Equal(t, "DRY_RUN", out.Mode)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "No submission found for this date", out.Results[0]["error"])
	assert.Len(t, out.Results[1]["deposit_loan"], 2)
	assert.Len(t, out.Results[1]["jewel"], 1)
	assert.Equal(t, []string{"ghost"}, out.FailedClients)

	rec = do(t, h, http.MethodPost, "/push/rcs", body, "x-api-key", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, store.SourceRCS, out.Source)
	assert.ElementsMatch(t, []string{"ghost", "acme"}, out.FailedClients, "nothing was filed online")

	rec = do(t, h, http.MethodPost, "/push/rcs", map[string]any{"clientNames": []string{}}, "x-api-key", testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndAutoExecuteUnconfigured(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.mount()

	rec := do(t, h, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"available"`)

	rec = do(t, h, http.MethodGet, "/clients/auto-execute", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/station-table-service/internal/adapter/http"
	"github.com/couchcryptid/station-table-service/internal/domain"
	"github.com/couchcryptid/station-table-service/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStations struct {
	err  error
	rows map[int64]domain.TransformedStation
}

func (m *mockStations) CheckReadiness(_ context.Context) error { return m.err }

func (m *mockStations) Get(id int64) (domain.TransformedStation, bool, error) {
	if m.err != nil {
		return domain.TransformedStation{}, false, m.err
	}
	s, ok := m.rows[id]
	return s, ok, nil
}

func (m *mockStations) Snapshot() ([]domain.TransformedStation, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.TransformedStation, 0, len(m.rows))
	for _, id := range []int64{5, 6} {
		if s, ok := m.rows[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestServer(stations *mockStations) *httpadapter.Server {
	return httpadapter.NewServer(":0", stations, slog.Default())
}

func readyStations() *mockStations {
	return &mockStations{rows: map[int64]domain.TransformedStation{
		5: {StationID: 5, StationName: "Loop", Order: 3, Line: domain.LineBlue},
		6: {StationID: 6, StationName: "Howard", Order: 1},
	}}
}

func serve(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhileRecovering(t *testing.T) {
	rec := serve(t, newTestServer(&mockStations{err: table.ErrNotReady}), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetStation(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/stations/5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"station_id":5,"station_name":"Loop","order":3,"line":"blue"}`, rec.Body.String())
}

func TestGetStation_NullLine(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/stations/6")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"station_id":6,"station_name":"Howard","order":1,"line":null}`, rec.Body.String())
}

func TestGetStation_NotFound(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/stations/999")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"station not found"}`, rec.Body.String())
}

func TestGetStation_BadID(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/stations/loop")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStation_Recovering(t *testing.T) {
	rec := serve(t, newTestServer(&mockStations{err: table.ErrNotReady}), "/stations/5")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetStation_InternalError(t *testing.T) {
	rec := serve(t, newTestServer(&mockStations{err: errors.New("boom")}), "/stations/5")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestListStations(t *testing.T) {
	rec := serve(t, newTestServer(readyStations()), "/stations")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int                         `json:"count"`
		Stations []domain.TransformedStation `json:"stations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Stations, 2)
	assert.Equal(t, int64(5), body.Stations[0].StationID)
	assert.Equal(t, domain.LineBlue, body.Stations[0].Line)
}

func TestListStations_Recovering(t *testing.T) {
	rec := serve(t, newTestServer(&mockStations{err: table.ErrNotReady}), "/stations")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

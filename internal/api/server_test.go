package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/vitals"
)

func newTestServer(t *testing.T) (*Server, *meds.Store, *meds.DoseLogger) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.ReadTimeout = 5
	cfg.Server.WriteTimeout = 5
	cfg.Security.JWTSecret = "test-secret"
	cfg.Security.AdminPassword = "hunter2"
	cfg.Security.AllowOrigins = []string{"*"}

	store := meds.NewStore(nil)
	ledger := meds.NewLedger()
	// A long settle delay keeps doses in flight for the duration of a test.
	doser := meds.NewDoseLogger(store, ledger, zap.NewNop(), meds.WithSettleDelay(time.Hour))
	t.Cleanup(doser.Close)

	s := New(cfg, Deps{
		Store:  store,
		Ledger: ledger,
		Doser:  doser,
		Vitals: vitals.NewStore(),
	}, zap.NewNop())
	return s, store, doser
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": "hunter2"})
	req, _ := http.NewRequest("POST", "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func authedReq(method, path, token string, body []byte) *http.Request {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/health", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestLoginWrongPassword(t *testing.T) {
	s, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"password": "wrong"})
	req, _ := http.NewRequest("POST", "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/medications", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req = authedReq("GET", "/api/medications", "not-a-token", nil)
	resp, err = s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestMedicationCRUD(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := login(t, s)

	body, _ := json.Marshal(map[string]any{
		"name":            "Metformin",
		"dosage":          "500mg",
		"frequency":       "twice daily",
		"form":            "pill",
		"remaining_units": 60,
		"total_units":     60,
	})
	resp, err := s.app.Test(authedReq("POST", "/api/medications", token, body))
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	var created medicationView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, meds.FrequencyTwiceDaily, created.Frequency)
	assert.NotEmpty(t, created.NextDoseLabel)
	assert.False(t, created.Overdue)

	// Missing dosage is a validation error.
	body, _ = json.Marshal(map[string]any{"name": "NoDose"})
	resp, err = s.app.Test(authedReq("POST", "/api/medications", token, body))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = s.app.Test(authedReq("GET", "/api/medications/"+created.ID, token, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ = json.Marshal(map[string]any{"dosage": "850mg"})
	resp, err = s.app.Test(authedReq("PUT", "/api/medications/"+created.ID, token, body))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var updated medicationView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "850mg", updated.Dosage)

	resp, err = s.app.Test(authedReq("DELETE", "/api/medications/"+created.ID, token, nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = s.app.Test(authedReq("GET", "/api/medications/"+created.ID, token, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestLogDoseConflictWhileInFlight(t *testing.T) {
	s, store, doser := newTestServer(t)
	token := login(t, s)

	med, err := store.Create(meds.CreateInput{Name: "Aspirin", Dosage: "81mg", Frequency: meds.FrequencyDaily})
	require.NoError(t, err)

	resp, err := s.app.Test(authedReq("POST", "/api/medications/"+med.ID+"/doses", token, nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)
	assert.True(t, doser.InFlight(med.ID))

	// A second tap while the first is settling is rejected.
	resp, err = s.app.Test(authedReq("POST", "/api/medications/"+med.ID+"/doses", token, nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = s.app.Test(authedReq("POST", "/api/medications/unknown/doses", token, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHistoryEndpointsEmpty(t *testing.T) {
	s, store, _ := newTestServer(t)
	token := login(t, s)

	resp, err := s.app.Test(authedReq("GET", "/api/history", token, nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var entries []meds.DoseLogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Empty(t, entries)

	med, err := store.Create(meds.CreateInput{Name: "Aspirin", Dosage: "81mg", Frequency: meds.FrequencyDaily})
	require.NoError(t, err)

	resp, err = s.app.Test(authedReq("GET", "/api/medications/"+med.ID+"/history", token, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestVitalsEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := login(t, s)

	body, _ := json.Marshal(map[string]string{"metric": "glucose", "value": "95", "note": "fasting"})
	resp, err := s.app.Test(authedReq("POST", "/api/vitals", token, body))
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	body, _ = json.Marshal(map[string]string{"metric": "steps", "value": "1000"})
	resp, err = s.app.Test(authedReq("POST", "/api/vitals", token, body))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = s.app.Test(authedReq("GET", "/api/vitals/latest?metric=glucose", token, nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var reading vitals.Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reading))
	assert.Equal(t, "95", reading.Value)
	assert.Equal(t, "mg/dL", reading.Unit)

	resp, err = s.app.Test(authedReq("GET", "/api/vitals/latest?metric=weight", token, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

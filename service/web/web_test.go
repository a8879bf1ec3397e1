package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirsrus/safetywatch/controller/alert"
	"github.com/kirsrus/safetywatch/controller/channel"
	"github.com/kirsrus/safetywatch/controller/classifier"
	"github.com/kirsrus/safetywatch/controller/gateway"
	"github.com/kirsrus/safetywatch/controller/worker"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/service/session"
)

type userStoreFake map[string]model.User

func (s userStoreFake) User(username string) (*model.User, error) {
	u, ok := s[username]
	if !ok {
		return nil, errors.NotFoundf("user %s", username)
	}
	return &u, nil
}

type reportFake struct {
	date time.Time
}

func (r *reportFake) Daily(date time.Time) ([]byte, error) {
	r.date = date
	if date.Year() < 2000 {
		return nil, errors.NotFoundf("no data")
	}
	return []byte("report"), nil
}

func hash(t *testing.T, password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestWeb(t *testing.T) (*Web, *reportFake) {
	alerts, err := alert.NewManager(nil, nil, &alert.ConfigManager{})
	require.NoError(t, err)
	messages, err := channel.NewChannel(alerts, nil, &channel.ConfigChannel{})
	require.NoError(t, err)
	workers, err := worker.NewTable(classifier.NewClassifier(nil), alerts, nil, &worker.ConfigTable{})
	require.NoError(t, err)
	gw, err := gateway.NewGateway(workers, alerts, messages, &gateway.ConfigGateway{})
	require.NoError(t, err)
	gw.Register(model.WorkerInfo{WorkerID: "W-001", Name: "Demo Worker"})
	gw.Register(model.WorkerInfo{WorkerID: "W-002", Name: "Second Worker", Zone: model.ZoneChemical})

	users := userStoreFake{
		"admin": {Username: "admin", Role: model.RoleAdmin, PasswordHash: hash(t, "admin123")},
		"W-001": {Username: "W-001", Role: model.RoleWorker, WorkerID: "W-001", PasswordHash: hash(t, "1234")},
	}
	sessions, err := session.NewSession(users, gw, &session.ConfigSession{})
	require.NoError(t, err)

	report := &reportFake{}
	svc, err := NewWeb(context.Background(), gw, sessions, report, &ConfigWeb{})
	require.NoError(t, err)
	web := svc.(*Web)
	web.Health("/healthz")
	web.Auth("/")
	web.WorkerApi("/worker")
	web.AdminApi("/admin")
	return web, report
}

func call(t *testing.T, web *Web, method, target, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	rec := httptest.NewRecorder()
	web.e.ServeHTTP(rec, req)

	var obj map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &obj)
	return rec, obj
}

func callList(t *testing.T, web *Web, target, token string) []map[string]interface{} {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(tokenHeader, token)
	rec := httptest.NewRecorder()
	web.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	return list
}

func login(t *testing.T, web *Web, path, body string) string {
	rec, obj := call(t, web, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, obj["token"])
	return obj["token"].(string)
}

func TestNewWeb(t *testing.T) {
	_, err := NewWeb(context.Background(), nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewWeb(context.Background(), nil, nil, nil, &ConfigWeb{})
	assert.Error(t, err)
}

func TestWeb_Health(t *testing.T) {
	web, _ := newTestWeb(t)
	rec, obj := call(t, web, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", obj["status"])
}

func TestWeb_Login(t *testing.T) {
	web, _ := newTestWeb(t)
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{name: "worker", path: "/login/worker", body: `{"worker_id":"W-001","pin":"1234"}`, wantCode: http.StatusOK},
		{name: "worker wrong pin", path: "/login/worker", body: `{"worker_id":"W-001","pin":"0000"}`, wantCode: http.StatusUnauthorized},
		{name: "worker unknown", path: "/login/worker", body: `{"worker_id":"W-404","pin":"1234"}`, wantCode: http.StatusUnauthorized},
		{name: "worker missing pin", path: "/login/worker", body: `{"worker_id":"W-001"}`, wantCode: http.StatusBadRequest},
		{name: "admin", path: "/login/admin", body: `{"username":"admin","password":"admin123"}`, wantCode: http.StatusOK},
		{name: "admin as worker", path: "/login/worker", body: `{"worker_id":"admin","pin":"admin123"}`, wantCode: http.StatusUnauthorized},
		{name: "worker as admin", path: "/login/admin", body: `{"username":"W-001","password":"1234"}`, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, obj := call(t, web, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "ok", obj["message"])
				assert.NotEmpty(t, rec.Header().Get("Set-Cookie"))
			} else {
				assert.NotEmpty(t, obj["error"])
			}
		})
	}
}

func TestWeb_Unauthenticated(t *testing.T) {
	web, _ := newTestWeb(t)
	workerToken := login(t, web, "/login/worker", `{"worker_id":"W-001","pin":"1234"}`)

	rec, obj := call(t, web, http.MethodPost, "/worker/reading", "", `{"heart_rate":140,"spo2":80,"temperature":37,"gas":50,"fatigue":0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, obj["error"])

	rec, _ = call(t, web, http.MethodGet, "/admin/alerts", workerToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, web, http.MethodPost, "/worker/poll", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the rejected reading changed nothing
	adminToken := login(t, web, "/login/admin", `{"username":"admin","password":"admin123"}`)
	assert.Empty(t, callList(t, web, "/admin/alerts", adminToken))
	rec, _ = call(t, web, http.MethodGet, "/admin/latest/W-001", adminToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeb_EmergencyScenario(t *testing.T) {
	web, _ := newTestWeb(t)
	workerToken := login(t, web, "/login/worker", `{"worker_id":"W-001","pin":"1234"}`)
	adminToken := login(t, web, "/login/admin", `{"username":"admin","password":"admin123"}`)

	rec, obj := call(t, web, http.MethodPost, "/worker/reading", workerToken, `{"heart_rate":140,"spo2":80,"temperature":37,"gas":50,"fatigue":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "EMERGENCY", obj["status"])
	assert.GreaterOrEqual(t, obj["risk_score"].(float64), 90.0)
	assert.Equal(t, true, obj["play_sound"])

	alerts := callList(t, web, "/admin/alerts", adminToken)
	require.Len(t, alerts, 1)
	assert.Equal(t, "VITALS", alerts[0]["alert_type"])
	assert.Equal(t, "HIGH", alerts[0]["priority"])
	assert.Equal(t, false, alerts[0]["escalation_flag"])

	workers := callList(t, web, "/admin/workers", adminToken)
	require.Len(t, workers, 2)
	assert.Equal(t, "W-001", workers[0]["worker_id"])
	assert.Equal(t, "EMERGENCY", workers[0]["status"])
	assert.Equal(t, 140.0, workers[0]["heart_rate"])
	assert.Nil(t, workers[1]["heart_rate"])

	alertID := int(alerts[0]["id"].(float64))
	rec, _ = call(t, web, http.MethodPost, "/admin/ack_alert", adminToken, `{"alert_id":`+strconv.Itoa(alertID)+`}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/admin/resolve_alert", adminToken, `{"alert_id":`+strconv.Itoa(alertID)+`}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/admin/ack_alert", adminToken, `{"alert_id":`+strconv.Itoa(alertID)+`}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, obj = call(t, web, http.MethodPost, "/worker/reading", workerToken, `{"heart_rate":75,"spo2":98,"temperature":36.8,"gas":20,"fatigue":"low"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SAFE", obj["status"])
	assert.Equal(t, false, obj["play_sound"])

	rec, obj = call(t, web, http.MethodGet, "/admin/latest/W-001", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 75.0, obj["heart_rate"])
	assert.Equal(t, "SAFE", obj["status"])

	history := callList(t, web, "/admin/worker/W-001/history", adminToken)
	require.Len(t, history, 2)
	assert.Equal(t, "EMERGENCY", history[0]["status"])
	assert.Equal(t, "SAFE", history[1]["status"])
	assert.Len(t, callList(t, web, "/admin/worker/W-001/history?limit=1", adminToken), 1)

	rec, _ = call(t, web, http.MethodGet, "/admin/worker/W-001/history?limit=x", adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = call(t, web, http.MethodGet, "/admin/worker/W-404/history", adminToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeb_StopWorkMessage(t *testing.T) {
	web, _ := newTestWeb(t)
	workerToken := login(t, web, "/login/worker", `{"worker_id":"W-001","pin":"1234"}`)
	adminToken := login(t, web, "/login/admin", `{"username":"admin","password":"admin123"}`)

	rec, obj := call(t, web, http.MethodPost, "/admin/message", adminToken, `{"worker_id":"W-001","message":"Leave the area","action":"STOP WORK"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "STOP WORK", obj["command"])

	rec, obj = call(t, web, http.MethodPost, "/worker/poll", workerToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, obj["history"])
	messages := obj["messages"].([]interface{})
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]interface{})
	assert.Equal(t, "STOP WORK", msg["command"])
	assert.Equal(t, "ADMIN", msg["from_role"])
	assert.Equal(t, "Leave the area", msg["message"])

	// delivered again until acknowledged
	_, obj = call(t, web, http.MethodPost, "/worker/poll", workerToken, "")
	require.Len(t, obj["messages"].([]interface{}), 1)

	id := int(msg["id"].(float64))
	rec, _ = call(t, web, http.MethodPost, "/worker/ack_message", workerToken, `{"id":`+strconv.Itoa(id)+`}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/worker/ack_message", workerToken, `{"id":`+strconv.Itoa(id)+`}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, obj = call(t, web, http.MethodPost, "/worker/poll", workerToken, "")
	assert.Empty(t, obj["messages"])

	rec, _ = call(t, web, http.MethodPost, "/admin/message", adminToken, `{"worker_id":"W-404","message":"hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/admin/message", adminToken, `{"worker_id":"W-001","message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeb_WorkerReports(t *testing.T) {
	web, _ := newTestWeb(t)
	workerToken := login(t, web, "/login/worker", `{"worker_id":"W-001","pin":"1234"}`)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{name: "missing gas", path: "/worker/reading", body: `{"heart_rate":75,"spo2":98,"temperature":36.8,"fatigue":0}`, wantCode: http.StatusBadRequest},
		{name: "broken json", path: "/worker/reading", body: `{"heart_rate":`, wantCode: http.StatusBadRequest},
		{name: "unknown hazard", path: "/worker/hazard", body: `{"type":"FLOOD"}`, wantCode: http.StatusBadRequest},
		{name: "hazard", path: "/worker/hazard", body: `{"type":"gas_leak"}`, wantCode: http.StatusOK},
		{name: "emergency", path: "/worker/emergency", body: "", wantCode: http.StatusOK},
		{name: "unknown message", path: "/worker/ack_message", body: `{"id":999}`, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, obj := call(t, web, http.MethodPost, tt.path, workerToken, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, true, obj["play_sound"])
			} else {
				assert.NotEmpty(t, obj["error"])
			}
		})
	}

	rec, obj := call(t, web, http.MethodGet, "/worker/profile", workerToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "W-001", obj["worker_id"])
	assert.Equal(t, "EMERGENCY", obj["status"])
}

func TestWeb_AdminAction(t *testing.T) {
	web, _ := newTestWeb(t)
	adminToken := login(t, web, "/login/admin", `{"username":"admin","password":"admin123"}`)

	rec, obj := call(t, web, http.MethodPost, "/admin/action", adminToken, `{"worker_id":"W-002","action":"stop"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "STOP WORK", obj["command"])

	rec, _ = call(t, web, http.MethodPost, "/admin/action", adminToken, `{"worker_id":"W-002","action":"PAUSE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	alerts := callList(t, web, "/admin/alerts", adminToken)
	require.Len(t, alerts, 1)
	assert.Equal(t, "MANUAL", alerts[0]["alert_type"])
}

func TestWeb_Logout(t *testing.T) {
	web, _ := newTestWeb(t)
	token := login(t, web, "/login/worker", `{"worker_id":"W-001","pin":"1234"}`)

	rec, _ := call(t, web, http.MethodPost, "/worker/poll", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/logout", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, web, http.MethodPost, "/worker/poll", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWeb_DailyReport(t *testing.T) {
	web, report := newTestWeb(t)
	adminToken := login(t, web, "/login/admin", `{"username":"admin","password":"admin123"}`)

	rec, _ := call(t, web, http.MethodGet, "/admin/report/daily?date=2024-05-01", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "report", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "safety_report_2024-05-01.xlsx")
	assert.Equal(t, 1, report.date.Day())

	rec, _ = call(t, web, http.MethodGet, "/admin/report/daily?date=01.05.2024", adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, web, http.MethodGet, "/admin/report/daily?date=1999-01-01", adminToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeb_ErrorHandler(t *testing.T) {
	web, _ := newTestWeb(t)

	rec, obj := call(t, web, http.MethodGet, "/no/such/route", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, obj["error"])
	assert.NotContains(t, obj, "message")

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "method not allowed", err: echo.ErrMethodNotAllowed, wantCode: http.StatusMethodNotAllowed},
		{name: "custom http error", err: echo.NewHTTPError(http.StatusBadRequest, "bad body"), wantCode: http.StatusBadRequest},
		{name: "plain error", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			web.errorHandler(tt.err, web.e.NewContext(req, rec))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

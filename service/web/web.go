package web

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/controller"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/validator"
	"github.com/kirsrus/safetywatch/service"
)

const (
	webPort     = 8080
	assetsDir   = "./static"
	cookieName  = "safety_session"
	tokenHeader = "X-Session-Token"
	sessionKey  = "session"
	dateLayout  = "2006-01-02"
)

// ConfigWeb configuration of Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort    uint
	AssetsDir  string
	CookieName string
}

// Web HTTP interface of the worker client and the admin dashboard. Built with NewWeb
type Web struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	e         *echo.Echo

	gatewayCtl controller.GatewayCtl
	sessionSvc service.SessionSvc
	reportSvc  service.ReportSvc

	webPort    uint
	assetsDir  string
	cookieName string
}

// NewWeb constructor of Web. reportSvc is optional, without it the daily report answers 404
func NewWeb(ctx context.Context, gatewayCtl controller.GatewayCtl, sessionSvc service.SessionSvc, reportSvc service.ReportSvc, config *ConfigWeb) (service.WebSvc, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if gatewayCtl == nil {
		return nil, errors.New("gatewayCtl is not set")
	}
	if sessionSvc == nil {
		return nil, errors.New("sessionSvc is not set")
	}

	web := Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		validator: validator.Get(),
		e:         echo.New(),

		gatewayCtl: gatewayCtl,
		sessionSvc: sessionSvc,
		reportSvc:  reportSvc,

		webPort:    webPort,
		assetsDir:  assetsDir,
		cookieName: cookieName,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}
	if config.AssetsDir != "" {
		web.assetsDir = config.AssetsDir
	}
	if config.CookieName != "" {
		web.cookieName = config.CookieName
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.HTTPErrorHandler = web.errorHandler
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, tokenHeader},
		AllowCredentials: true,
	}))

	return &web, nil
}

// Start listens on the configured port until Shutdown
func (m *Web) Start() error {
	m.log.Infof("HTTP server on port :%d", m.webPort)
	err := m.e.Start(fmt.Sprintf(":%d", m.webPort))
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Annotate(err, "HTTP server")
}

// Shutdown stops the server gracefully
func (m *Web) Shutdown(ctx context.Context) error {
	m.log.Info("HTTP server shutdown")
	return errors.Trace(m.e.Shutdown(ctx))
}

// Static serves the worker and admin clients
func (m *Web) Static(path string) {
	m.e.Static(path, m.assetsDir)
}

// Health liveness check
func (m *Web) Health(path string) {
	m.e.GET(path, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Auth login of workers and admins and logout under the prefix
func (m *Web) Auth(prefix string) {
	m.e.POST(path.Join(prefix, "login/worker"), m.loginWorker)
	m.e.POST(path.Join(prefix, "login/admin"), m.loginAdmin)
	m.e.POST(path.Join(prefix, "logout"), m.logout)
}

// WorkerApi routes of the worker client, worker session required
func (m *Web) WorkerApi(prefix string) {
	g := m.e.Group(prefix, m.requireRole(model.RoleWorker))
	g.GET("/profile", m.workerProfile)
	g.POST("/reading", m.workerReading)
	g.POST("/hazard", m.workerHazard)
	g.POST("/emergency", m.workerEmergency)
	g.POST("/poll", m.workerPoll)
	g.POST("/ack_message", m.workerAckMessage)
}

// AdminApi routes of the admin dashboard, admin session required
func (m *Web) AdminApi(prefix string) {
	g := m.e.Group(prefix, m.requireRole(model.RoleAdmin))
	g.GET("/workers", m.adminWorkers)
	g.GET("/worker/:id/history", m.adminHistory)
	g.GET("/latest/:id", m.adminLatest)
	g.GET("/alerts", m.adminAlerts)
	g.POST("/ack_alert", m.adminAckAlert)
	g.POST("/resolve_alert", m.adminResolveAlert)
	g.POST("/message", m.adminMessage)
	g.POST("/action", m.adminAction)
	g.GET("/report/daily", m.adminDailyReport)
}

// Session token from the cookie or the header
func (m *Web) token(c echo.Context) string {
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.Request().Header.Get(tokenHeader)
}

func (m *Web) requireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := m.sessionSvc.Session(m.token(c))
			if err != nil {
				return m.fail(c, err)
			}
			if s.Role != role {
				return m.fail(c, errors.Unauthorizedf("%s session required", role))
			}
			c.Set(sessionKey, s)
			return next(c)
		}
	}
}

func sessionOf(c echo.Context) model.Session {
	s, _ := c.Get(sessionKey).(model.Session)
	return s
}

// Binds and validates the JSON body
func (m *Web) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.NewNotValid(err, "request body")
	}
	return errors.Trace(m.validator.Validate(req))
}

// Maps the error kind to the status code and replies {"error": reason}
func (m *Web) fail(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.IsUnauthorized(err):
		code = http.StatusUnauthorized
	case errors.IsNotFound(err):
		code = http.StatusNotFound
	case errors.IsNotValid(err):
		code = http.StatusBadRequest
	case errors.IsAlreadyExists(err):
		code = http.StatusConflict
	case controller.IsRateLimited(err):
		code = http.StatusTooManyRequests
	}
	if code == http.StatusInternalServerError {
		m.log.Errorf("%s %s: %s", c.Request().Method, c.Path(), errors.ErrorStack(err))
	} else {
		m.log.Debugf("%s %s: %s", c.Request().Method, c.Path(), err)
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}

// Errors of echo itself (unknown routes, wrong methods, panics) in the {"error": reason} form
func (m *Web) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	reason := http.StatusText(code)
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		reason = fmt.Sprint(he.Message)
	} else {
		m.log.Errorf("%s %s: %s", c.Request().Method, c.Request().URL.Path, errors.ErrorStack(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": reason})
	}
	if err != nil {
		m.log.Warnf("error response: %s", err)
	}
}

func ok(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "ok"})
}

type loginResponse struct {
	Message  string     `json:"message"`
	Role     model.Role `json:"role"`
	WorkerID string     `json:"worker_id,omitempty"`
	Token    string     `json:"token"`
}

func (m *Web) login(c echo.Context, role model.Role, username, password string) error {
	s, err := m.sessionSvc.Login(role, username, password)
	if err != nil {
		return m.fail(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, loginResponse{
		Message:  "ok",
		Role:     s.Role,
		WorkerID: s.WorkerID,
		Token:    s.Token,
	})
}

func (m *Web) loginWorker(c echo.Context) error {
	var req struct {
		WorkerID string `json:"worker_id" conform:"trim" validate:"required"`
		Pin      string `json:"pin" validate:"required"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	return m.login(c, model.RoleWorker, req.WorkerID, req.Pin)
}

func (m *Web) loginAdmin(c echo.Context) error {
	var req struct {
		Username string `json:"username" conform:"trim" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	return m.login(c, model.RoleAdmin, req.Username, req.Password)
}

func (m *Web) logout(c echo.Context) error {
	if token := m.token(c); token != "" {
		m.sessionSvc.Logout(token)
	}
	c.SetCookie(&http.Cookie{
		Name:    m.cookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	return ok(c)
}

func (m *Web) workerProfile(c echo.Context) error {
	state, err := m.gatewayCtl.Worker(sessionOf(c).WorkerID)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (m *Web) workerReading(c echo.Context) error {
	var req model.ReadingInput
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	s := sessionOf(c)
	res, err := m.gatewayCtl.SubmitReading(s.WorkerID, req.Reading())
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) workerHazard(c echo.Context) error {
	var req struct {
		Type string `json:"type" conform:"trim,upper" validate:"required,hazard"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	res, err := m.gatewayCtl.ReportHazard(sessionOf(c).WorkerID, model.HazardType(req.Type))
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) workerEmergency(c echo.Context) error {
	res, err := m.gatewayCtl.ReportEmergency(sessionOf(c).WorkerID)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) workerPoll(c echo.Context) error {
	res, err := m.gatewayCtl.WorkerPoll(sessionOf(c).WorkerID)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) workerAckMessage(c echo.Context) error {
	var req struct {
		ID uint64 `json:"id" validate:"required"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	if err := m.gatewayCtl.AckMessage(sessionOf(c).WorkerID, req.ID); err != nil {
		return m.fail(c, err)
	}
	return ok(c)
}

// workerRow flattened worker state of the dashboard table
type workerRow struct {
	WorkerID  string       `json:"worker_id"`
	Name      string       `json:"name"`
	Status    model.Status `json:"status"`
	Zone      string       `json:"zone"`
	RiskScore int          `json:"risk_score"`
	Online    bool         `json:"online"`
	HeartRate *float64     `json:"heart_rate"`
	SpO2      *float64     `json:"spo2"`
	Gas       *float64     `json:"gas"`
}

func (m *Web) adminWorkers(c echo.Context) error {
	snapshot := m.gatewayCtl.AdminSnapshot()
	rows := make([]workerRow, 0, len(snapshot.Workers))
	for _, state := range snapshot.Workers {
		row := workerRow{
			WorkerID:  state.WorkerID,
			Name:      state.Name,
			Status:    state.Status,
			Zone:      state.Zone,
			RiskScore: state.RiskScore,
			Online:    state.Online,
		}
		if latest := state.Latest; latest != nil {
			row.HeartRate = &latest.HeartRate
			row.SpO2 = &latest.SpO2
			row.Gas = &latest.Gas
		}
		rows = append(rows, row)
	}
	return c.JSON(http.StatusOK, rows)
}

func (m *Web) adminHistory(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return m.fail(c, errors.NotValidf("limit %q", v))
		}
		limit = n
	}
	history, err := m.gatewayCtl.WorkerHistory(c.Param("id"), limit)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (m *Web) adminLatest(c echo.Context) error {
	reading, err := m.gatewayCtl.Latest(c.Param("id"))
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, reading)
}

func (m *Web) adminAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, m.gatewayCtl.AdminSnapshot().Alerts)
}

type alertRequest struct {
	AlertID uint64 `json:"alert_id" validate:"required"`
}

func (m *Web) adminAckAlert(c echo.Context) error {
	var req alertRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	if err := m.gatewayCtl.AckAlert(req.AlertID, sessionOf(c).Username); err != nil {
		return m.fail(c, err)
	}
	return ok(c)
}

func (m *Web) adminResolveAlert(c echo.Context) error {
	var req alertRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	if err := m.gatewayCtl.ResolveAlert(req.AlertID); err != nil {
		return m.fail(c, err)
	}
	return ok(c)
}

func (m *Web) adminMessage(c echo.Context) error {
	var req struct {
		WorkerID string `json:"worker_id" conform:"trim" validate:"required"`
		Message  string `json:"message" conform:"trim"`
		Action   string `json:"action" conform:"trim"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	msg, err := m.gatewayCtl.SendMessage(req.WorkerID, req.Message, req.Action)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (m *Web) adminAction(c echo.Context) error {
	var req struct {
		WorkerID string `json:"worker_id" conform:"trim" validate:"required"`
		Action   string `json:"action" conform:"trim,upper" validate:"required"`
	}
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	msg, err := m.gatewayCtl.AdminAction(req.WorkerID, model.AdminAction(req.Action), sessionOf(c).Username)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (m *Web) adminDailyReport(c echo.Context) error {
	if m.reportSvc == nil {
		return m.fail(c, errors.NotFoundf("report service"))
	}
	date := time.Now()
	if v := c.QueryParam("date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return m.fail(c, errors.NotValidf("date %q", v))
		}
		date = d
	}
	content, err := m.reportSvc.Daily(date)
	if err != nil {
		return m.fail(c, err)
	}
	name := fmt.Sprintf("safety_report_%s.xlsx", date.Format(dateLayout))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, mimetype.Detect(content).String(), content)
}

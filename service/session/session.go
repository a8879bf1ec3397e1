package session

import (
	"io/ioutil"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/store"
)

const (
	defaultTTL         = 12 * time.Hour
	maxCleanupInterval = time.Minute
)

// Presence is told when a worker gets its first or loses its last session
type Presence interface {
	SetOnline(workerID string, online bool) error
}

// Session table of authenticated clients kept in go-cache. Built with NewSession.
// Sessions expire after the TTL, a worker goes offline with its last session
type Session struct {
	log *logrus.Entry

	userStore store.UserStore
	presence  Presence
	now       func() time.Time

	sessions *cache.Cache
}

// ConfigSession configuration of Session
type ConfigSession struct {
	Log *logrus.Logger
	// Lifetime of a session
	TTL time.Duration
	// Clock, time.Now when nil
	Now func() time.Time
}

// NewSession constructor of Session. presence is optional
func NewSession(userStore store.UserStore, presence Presence, config *ConfigSession) (*Session, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if userStore == nil {
		return nil, errors.New("userStore is not set")
	}

	ttl := defaultTTL
	if config.TTL > 0 {
		ttl = config.TTL
	}
	session := &Session{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "session",
			"scope":  "service",
		}),
		userStore: userStore,
		presence:  presence,
		now:       time.Now,
		sessions:  cache.New(ttl, min(ttl, maxCleanupInterval)),
	}
	if config.Now != nil {
		session.now = config.Now
	}
	session.sessions.OnEvicted(session.evicted)

	return session, nil
}

// Login checks the password (the pin for workers) against the stored bcrypt hash and opens a session
// of the role. Unknown users, other roles and wrong passwords give the same Unauthorized error
func (m *Session) Login(role model.Role, username, password string) (model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Session{}, errors.Unauthorizedf("invalid credentials")
	}

	user, err := m.userStore.User(username)
	if err != nil {
		if errors.IsNotFound(err) {
			m.log.Warnf("login of unknown user %s", username)
			return model.Session{}, errors.Unauthorizedf("invalid credentials")
		}
		return model.Session{}, errors.Trace(err)
	}
	if user.Role != role {
		m.log.Warnf("login of %s %s as %s", user.Role, username, role)
		return model.Session{}, errors.Unauthorizedf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		m.log.Warnf("wrong password of %s", username)
		return model.Session{}, errors.Unauthorizedf("invalid credentials")
	}

	res := model.Session{
		Token:     uuid.New().String(),
		Role:      user.Role,
		Username:  user.Username,
		WorkerID:  user.WorkerID,
		CreatedAt: m.now(),
	}
	m.sessions.SetDefault(res.Token, res)

	if res.Role == model.RoleWorker && m.presence != nil {
		if err := m.presence.SetOnline(res.WorkerID, true); err != nil {
			m.sessions.Delete(res.Token)
			return model.Session{}, errors.Trace(err)
		}
	}
	m.log.Infof("%s %s logged in", res.Role, res.Username)
	return res, nil
}

// Logout closes the session. Unknown tokens are ignored
func (m *Session) Logout(token string) {
	m.sessions.Delete(token)
}

// Session by token
func (m *Session) Session(token string) (model.Session, error) {
	if token == "" {
		return model.Session{}, errors.Unauthorizedf("missing session")
	}
	v, ok := m.sessions.Get(token)
	if !ok {
		// expired sessions take their worker offline right away
		m.sessions.DeleteExpired()
		return model.Session{}, errors.Unauthorizedf("invalid session")
	}
	return v.(model.Session), nil
}

// Called by go-cache on delete and expiry. The worker stays online while another session lives
func (m *Session) evicted(token string, v interface{}) {
	s, ok := v.(model.Session)
	if !ok || s.Role != model.RoleWorker || m.presence == nil {
		return
	}
	for _, item := range m.sessions.Items() {
		if other, ok := item.Object.(model.Session); ok && other.WorkerID == s.WorkerID {
			return
		}
	}
	if err := m.presence.SetOnline(s.WorkerID, false); err != nil {
		m.log.Warnf("worker %s offline: %s", s.WorkerID, err)
		return
	}
	m.log.Infof("worker %s logged out", s.WorkerID)
}

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirsrus/safetywatch/model"
)

type userStoreFake map[string]model.User

func (s userStoreFake) User(username string) (*model.User, error) {
	u, ok := s[username]
	if !ok {
		return nil, errors.NotFoundf("user %s", username)
	}
	return &u, nil
}

type presenceFake struct {
	mu     sync.Mutex
	online map[string]bool
}

func (p *presenceFake) SetOnline(workerID string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if workerID == "ghost" {
		return errors.NotFoundf("worker %s", workerID)
	}
	p.online[workerID] = online
	return nil
}

func (p *presenceFake) isOnline(workerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[workerID]
}

func hash(t *testing.T, password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestSession(t *testing.T, ttl time.Duration) (*Session, *presenceFake) {
	users := userStoreFake{
		"admin": {Username: "admin", Role: model.RoleAdmin, PasswordHash: hash(t, "admin123")},
		"W-001": {Username: "W-001", Role: model.RoleWorker, WorkerID: "W-001", PasswordHash: hash(t, "1234")},
		"ghost": {Username: "ghost", Role: model.RoleWorker, WorkerID: "ghost", PasswordHash: hash(t, "0000")},
	}
	presence := &presenceFake{online: map[string]bool{}}
	s, err := NewSession(users, presence, &ConfigSession{TTL: ttl})
	require.NoError(t, err)
	return s, presence
}

func TestNewSession(t *testing.T) {
	_, err := NewSession(nil, nil, &ConfigSession{})
	assert.Error(t, err)
	_, err = NewSession(userStoreFake{}, nil, nil)
	assert.Error(t, err)
}

func TestSession_Login(t *testing.T) {
	tests := []struct {
		name     string
		role     model.Role
		username string
		password string
		wantErr  bool
	}{
		{"admin", model.RoleAdmin, "admin", "admin123", false},
		{"worker", model.RoleWorker, "W-001", "1234", false},
		{"worker with spaces", model.RoleWorker, " W-001 ", "1234", false},
		{"wrong password", model.RoleAdmin, "admin", "nope", true},
		{"wrong pin", model.RoleWorker, "W-001", "4321", true},
		{"unknown", model.RoleWorker, "W-404", "1234", true},
		{"admin as worker", model.RoleWorker, "admin", "admin123", true},
		{"worker as admin", model.RoleAdmin, "W-001", "1234", true},
		{"empty", model.RoleAdmin, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, time.Hour)
			got, err := s.Login(tt.role, tt.username, tt.password)
			if tt.wantErr {
				assert.True(t, errors.IsUnauthorized(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.Token)
			assert.Equal(t, tt.role, got.Role)

			stored, err := s.Session(got.Token)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestSession_Presence(t *testing.T) {
	s, presence := newTestSession(t, time.Hour)

	first, err := s.Login(model.RoleWorker, "W-001", "1234")
	require.NoError(t, err)
	assert.True(t, presence.isOnline("W-001"))
	second, err := s.Login(model.RoleWorker, "W-001", "1234")
	require.NoError(t, err)

	s.Logout(first.Token)
	assert.True(t, presence.isOnline("W-001"))
	_, err = s.Session(first.Token)
	assert.True(t, errors.IsUnauthorized(err))

	s.Logout(second.Token)
	assert.False(t, presence.isOnline("W-001"))

	// a roster user without a registered worker cannot log in
	_, err = s.Login(model.RoleWorker, "ghost", "0000")
	assert.True(t, errors.IsNotFound(err))

	s.Logout("unknown")
	_, err = s.Session("")
	assert.True(t, errors.IsUnauthorized(err))
}

func TestSession_Expiry(t *testing.T) {
	s, presence := newTestSession(t, 50*time.Millisecond)

	got, err := s.Login(model.RoleWorker, "W-001", "1234")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, err = s.Session(got.Token)
	assert.True(t, errors.IsUnauthorized(err))
	assert.False(t, presence.isOnline("W-001"), "a rejected expired session takes the worker offline")
}

func TestSession_ExpiryWithoutRequests(t *testing.T) {
	s, presence := newTestSession(t, 50*time.Millisecond)

	_, err := s.Login(model.RoleWorker, "W-001", "1234")
	require.NoError(t, err)
	require.True(t, presence.isOnline("W-001"))

	// the janitor runs at the session lifetime, no request needed
	assert.Eventually(t, func() bool {
		return !presence.isOnline("W-001")
	}, time.Second, 10*time.Millisecond)
}

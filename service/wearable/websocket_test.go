package wearable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/safetywatch/model"
)

func TestNewWebsocket(t *testing.T) {
	type args struct {
		config *ConfigWebsocket
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "valid",
			args: args{config: &ConfigWebsocket{
				FeedInfo: model.FeedInfo{ID: 1, URL: "ws://192.168.10.10:8000/feed", Name: "Hub 1"},
			}},
			wantErr: false,
		},
		{
			name: "missing id",
			args: args{config: &ConfigWebsocket{
				FeedInfo: model.FeedInfo{ID: 0, URL: "ws://192.168.10.10:8000/feed", Name: "Hub 1"},
			}},
			wantErr: true,
		},
		{
			name: "http address",
			args: args{config: &ConfigWebsocket{
				FeedInfo: model.FeedInfo{ID: 1, URL: "http://192.168.10.10:8000/feed", Name: "Hub 1"},
			}},
			wantErr: true,
		},
		{
			name:    "no config",
			args:    args{config: nil},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := NewWebsocket(ctx, tt.args.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWebsocket() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Hub sending the given messages to every client, then keeping the connection open
func newHub(t *testing.T, messages ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWebsocket_EmitReading(t *testing.T) {
	hub := newHub(t,
		`{"worker_id":"W-001","heart_rate":80,"spo2":97,"temperature":36.6,"gas":10,"fatigue":0}`,
		`not a reading`,
		`[{"worker_id":"W-002","heart_rate":140,"spo2":97,"temperature":36.6,"gas":10,"fatigue":1},
		  {"worker_id":"W-003","heart_rate":70,"spo2":99,"temperature":36.6,"gas":0,"fatigue":"low"}]`,
	)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := NewWebsocket(ctx, &ConfigWebsocket{
		FeedInfo:         model.FeedInfo{ID: 1, URL: "ws" + strings.TrimPrefix(hub.URL, "http") + "/feed", Name: "Hub"},
		ReconnectTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	got := make([]string, 0)
	for i := 0; i < 3; i++ {
		r, err := feed.EmitReading()
		require.NoError(t, err)
		got = append(got, r.WorkerID)
	}
	assert.Equal(t, []string{"W-001", "W-002", "W-003"}, got)

	cancel()
	_, err = feed.EmitReading()
	assert.Equal(t, context.Canceled, err)
}

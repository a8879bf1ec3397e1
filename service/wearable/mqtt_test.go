package wearable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMqtt(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConfigMqtt
		wantErr bool
	}{
		{"valid", &ConfigMqtt{Broker: "tcp://127.0.0.1:1", Topic: "safety/readings", ClientID: "test"}, false},
		{"no broker", &ConfigMqtt{Topic: "safety/readings"}, true},
		{"no topic", &ConfigMqtt{Broker: "tcp://127.0.0.1:1"}, true},
		{"no config", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := NewMqtt(ctx, tt.config)
			assert.Equal(t, tt.wantErr, err != nil, "error %v", err)
		})
	}
}

func TestMqtt_Handle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := NewMqtt(ctx, &ConfigMqtt{Broker: "tcp://127.0.0.1:1", Topic: "safety/readings", ClientID: "test"})
	require.NoError(t, err)
	feed := svc.(*Mqtt)

	feed.handle([]byte(`garbage`))
	feed.handle([]byte(`{"worker_id":"W-007","heart_rate":95,"spo2":96,"temperature":37.2,"gas":30,"fatigue":"high"}`))

	r, err := feed.EmitReading()
	require.NoError(t, err)
	assert.Equal(t, "W-007", r.WorkerID)
	assert.Equal(t, 95.0, r.HeartRate)

	cancel()
	_, err = feed.EmitReading()
	assert.Equal(t, context.Canceled, err)
}

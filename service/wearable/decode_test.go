package wearable

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/safetywatch/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []model.Reading
		wantErr bool
	}{
		{
			name:    "single",
			payload: `{"worker_id":"W-001","heart_rate":80,"spo2":97,"temperature":36.6,"gas":10,"fatigue":0}`,
			want:    []model.Reading{{WorkerID: "W-001", HeartRate: 80, SpO2: 97, Temperature: 36.6, Gas: 10}},
		},
		{
			name: "batch with fatigue labels",
			payload: `[{"worker_id":" W-001 ","heart_rate":80,"spo2":97,"temperature":36.6,"gas":10,"fatigue":"medium"},
				{"worker_id":"W-002","heart_rate":135,"spo2":90,"temperature":38,"gas":0,"fatigue":5}]`,
			want: []model.Reading{
				{WorkerID: "W-001", HeartRate: 80, SpO2: 97, Temperature: 36.6, Gas: 10, Fatigue: model.FatigueMedium},
				{WorkerID: "W-002", HeartRate: 135, SpO2: 90, Temperature: 38, Gas: 0, Fatigue: model.FatigueHigh},
			},
		},
		{
			name:    "zero values are present values",
			payload: `{"worker_id":"W-001","heart_rate":0,"spo2":0,"temperature":0,"gas":0,"fatigue":0}`,
			want:    []model.Reading{{WorkerID: "W-001"}},
		},
		{"missing field", `{"worker_id":"W-001","heart_rate":80,"spo2":97,"temperature":36.6,"fatigue":0}`, nil, true},
		{"missing worker", `{"heart_rate":80,"spo2":97,"temperature":36.6,"gas":10,"fatigue":0}`, nil, true},
		{"bad fatigue", `{"worker_id":"W-001","heart_rate":80,"spo2":97,"temperature":36.6,"gas":10,"fatigue":"sleepy"}`, nil, true},
		{"not json", `hello`, nil, true},
		{"broken batch", `[{"worker_id":"W-001"`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsNotValid(err), "error %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

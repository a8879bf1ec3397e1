package validator

import (
	"encoding/json"
	"testing"

	"github.com/juju/errors"

	"github.com/kirsrus/safetywatch/model"
)

func TestValidator_Validate(t *testing.T) {
	type hazardRequest struct {
		Type string `conform:"trim,upper" validate:"required,hazard"`
	}
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{
			name:    "correct feed",
			value:   &model.FeedInfo{ID: 1, URL: "ws://127.0.0.1:8000/feed", Name: "hub"},
			wantErr: false,
		},
		{
			name:    "feed with http url",
			value:   &model.FeedInfo{ID: 1, URL: "http://127.0.0.1:8000/feed", Name: "hub"},
			wantErr: true,
		},
		{
			name:    "feed without id",
			value:   &model.FeedInfo{URL: "wss://hub.local/feed", Name: "hub"},
			wantErr: true,
		},
		{
			name:    "known hazard",
			value:   &hazardRequest{Type: " fire "},
			wantErr: false,
		},
		{
			name:    "unknown hazard",
			value:   &hazardRequest{Type: "FLOOD"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Get().Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !errors.IsNotValid(err) {
				t.Errorf("Validate() error kind = %T, want NotValid", errors.Cause(err))
			}
		})
	}
}

func TestValidator_ReadingInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name:    "complete",
			body:    `{"heart_rate":75,"spo2":98,"temperature":36.8,"gas":0,"fatigue":0}`,
			wantErr: false,
		},
		{
			name:    "fatigue label",
			body:    `{"heart_rate":75,"spo2":98,"temperature":36.8,"gas":20,"fatigue":"high"}`,
			wantErr: false,
		},
		{
			name:    "missing gas",
			body:    `{"heart_rate":75,"spo2":98,"temperature":36.8,"fatigue":0}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in model.ReadingInput
			if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
				t.Fatal(err)
			}
			err := Get().Validate(&in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

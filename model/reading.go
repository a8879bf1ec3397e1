package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Fatigue level reported by the wearable: 0 (low), 1 (medium), 2 (high)
type Fatigue int

const (
	FatigueLow    Fatigue = 0
	FatigueMedium Fatigue = 1
	FatigueHigh   Fatigue = 2
)

// ClampFatigue keeps the level inside [FatigueLow, FatigueHigh]
func ClampFatigue(v int) Fatigue {
	if v < int(FatigueLow) {
		return FatigueLow
	}
	if v > int(FatigueHigh) {
		return FatigueHigh
	}
	return Fatigue(v)
}

// UnmarshalJSON accepts numbers, numeric strings and the labels low/medium/high.
// Out of range numbers are clamped, never rejected
func (m *Fatigue) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		if math.IsNaN(n) {
			*m = FatigueHigh
			return nil
		}
		*m = ClampFatigue(int(math.Round(n)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.NotValidf("fatigue %s", string(b))
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		*m = FatigueLow
	case "medium":
		*m = FatigueMedium
	case "high":
		*m = FatigueHigh
	default:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return errors.NotValidf("fatigue %q", s)
		}
		*m = ClampFatigue(int(math.Round(v)))
	}
	return nil
}

// Reading one timestamped sensor sample of a worker. Immutable once stored in history
type Reading struct {
	WorkerID    string    `json:"worker_id"`
	Timestamp   time.Time `json:"timestamp"`
	HeartRate   float64   `json:"heart_rate"`
	SpO2        float64   `json:"spo2"`
	Temperature float64   `json:"temperature"`
	Gas         float64   `json:"gas"`
	Fatigue     Fatigue   `json:"fatigue"`
	// Filled by the classifier before the reading is stored
	Status    Status `json:"status"`
	RiskScore int    `json:"risk_score"`
}

// ReadingInput reading as submitted by a worker or a wearable feed. Pointer fields
// detect missing values
type ReadingInput struct {
	WorkerID    string   `json:"worker_id" conform:"trim"`
	HeartRate   *float64 `json:"heart_rate" validate:"required"`
	SpO2        *float64 `json:"spo2" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Gas         *float64 `json:"gas" validate:"required"`
	Fatigue     *Fatigue `json:"fatigue" validate:"required"`
}

// Reading converts a validated input into a Reading. Nil fields become zero
func (m ReadingInput) Reading() Reading {
	r := Reading{WorkerID: m.WorkerID}
	if m.HeartRate != nil {
		r.HeartRate = *m.HeartRate
	}
	if m.SpO2 != nil {
		r.SpO2 = *m.SpO2
	}
	if m.Temperature != nil {
		r.Temperature = *m.Temperature
	}
	if m.Gas != nil {
		r.Gas = *m.Gas
	}
	if m.Fatigue != nil {
		r.Fatigue = *m.Fatigue
	}
	return r
}

package main

import (
	"math"
	"math/rand"
)

// Band of generated vitals
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Sample request body of POST /worker/reading
type Sample struct {
	HeartRate   float64 `json:"heart_rate"`
	SpO2        float64 `json:"spo2"`
	Temperature float64 `json:"temperature"`
	Gas         float64 `json:"gas"`
	Fatigue     int     `json:"fatigue"`
}

// Sensor virtual wearable. 65% of the samples are normal, 25% warning and 10% critical
type Sensor struct {
	rnd *rand.Rand
	// Forces every sample into the band when set
	band Band
}

// NewSensor sensor with a deterministic source for the seed
func NewSensor(seed int64, band Band) *Sensor {
	return &Sensor{
		rnd:  rand.New(rand.NewSource(seed)),
		band: band,
	}
}

// Next generates the next sample
func (m *Sensor) Next() (Sample, Band) {
	band := m.band
	if band == "" {
		switch p := m.rnd.Float64(); {
		case p < 0.65:
			band = BandNormal
		case p < 0.9:
			band = BandWarning
		default:
			band = BandCritical
		}
	}

	var s Sample
	switch band {
	case BandWarning:
		s.HeartRate = m.gauss(110, 10)
		s.SpO2 = m.gauss(92, 2)
		s.Temperature = m.gauss(37.8, 0.5)
		s.Gas = math.Abs(m.gauss(90, 25))
	case BandCritical:
		s.HeartRate = m.gauss(135, 12)
		s.SpO2 = m.gauss(86, 3)
		s.Temperature = m.gauss(39.5, 0.5)
		s.Gas = math.Abs(m.gauss(190, 25))
	default:
		s.HeartRate = m.gauss(82, 8)
		s.SpO2 = m.gauss(97, 1.5)
		s.Temperature = m.gauss(36.9, 0.3)
		s.Gas = math.Abs(m.gauss(20, 10))
	}

	switch p := m.rnd.Float64(); {
	case p < 0.7:
		s.Fatigue = 0
	case p < 0.9:
		s.Fatigue = 1
	default:
		s.Fatigue = 2
	}

	s.HeartRate = bounded(s.HeartRate, 50, 180)
	s.SpO2 = bounded(s.SpO2, 70, 100)
	s.Temperature = bounded(s.Temperature, 35, 41)
	s.Gas = bounded(s.Gas, 0, 400)
	return s, band
}

func (m *Sensor) gauss(mean, stddev float64) float64 {
	return round1(m.rnd.NormFloat64()*stddev + mean)
}

func bounded(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

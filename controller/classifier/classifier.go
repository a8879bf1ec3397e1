package classifier

import (
	"fmt"
	"math"

	"github.com/kirsrus/safetywatch/model"
)

// Status thresholds. A value exactly on a threshold takes the more severe status
const (
	EmergencyHeartRate = 130.0
	EmergencySpO2      = 85.0
	EmergencyGas       = 400.0
	WarningHeartRate   = 110.0
	WarningSpO2        = 90.0
	WarningGas         = 150.0
)

// Baselines and full-scale points of the normalised deviations
const (
	baselineHeartRate   = 70.0
	baselineSpO2        = 98.0
	baselineTemperature = 37.0
	fullTemperature     = 40.0
)

// Weights of the risk score. They sum to 1
const (
	weightHeartRate   = 0.25
	weightSpO2        = 0.25
	weightTemperature = 0.15
	weightGas         = 0.20
	weightFatigue     = 0.15
	weightHistory     = 0.10
)

// Readings of the history that feed the trend term
const historyWindow = 5

// Sensor clamps
const (
	minHeartRate   = 30.0
	maxHeartRate   = 220.0
	minSpO2        = 50.0
	maxSpO2        = 100.0
	minTemperature = 28.0
	maxTemperature = 45.0
	minGas         = 0.0
	maxGas         = 5000.0
)

// Parameter names in Assessment.Components
const (
	ParamHeartRate   = "heart_rate"
	ParamSpO2        = "spo2"
	ParamTemperature = "temperature"
	ParamGas         = "gas"
	ParamFatigue     = "fatigue"
	ParamHistory     = "history"
)

// Classifier deterministic risk classifier. Built with NewClassifier
type Classifier struct {
	zoneSensitivity map[string]float64
}

// ConfigClassifier configuration of Classifier
type ConfigClassifier struct {
	// Zone factors dividing the gas and SpO2 components. Defaults when empty
	ZoneSensitivity map[string]float64
}

// NewClassifier constructor of Classifier
func NewClassifier(config *ConfigClassifier) *Classifier {
	zones := model.DefaultZoneSensitivity()
	if config != nil && len(config.ZoneSensitivity) != 0 {
		zones = make(map[string]float64, len(config.ZoneSensitivity))
		for k, v := range config.ZoneSensitivity {
			zones[model.NormalizeZone(k)] = v
		}
	}
	return &Classifier{zoneSensitivity: zones}
}

// Classify status rules, first match wins:
//  1. hr >= 130 or spo2 <= 85 or gas >= 400 or fatigue == 2 -> EMERGENCY, score 90..100
//  2. hr >= 110 or spo2 <= 90 or gas >= 150 or fatigue == 1 -> WARNING, score 70..89
//  3. otherwise SAFE, score 0..69
// Inside a band the score follows the weighted sum of normalised deviations, which never
// decreases when a single input worsens
func (m Classifier) Classify(reading model.Reading, zone string, history []model.Reading) model.Assessment {
	r := sanitize(reading)
	factor := m.zoneFactor(zone)

	hr := unit((r.HeartRate - baselineHeartRate) / (EmergencyHeartRate - baselineHeartRate))
	spo2 := unit((baselineSpO2 - r.SpO2) / (baselineSpO2 - EmergencySpO2) / factor)
	temp := unit((r.Temperature - baselineTemperature) / (fullTemperature - baselineTemperature))
	gas := unit(r.Gas / EmergencyGas / factor)
	fatigue := float64(r.Fatigue) / float64(model.FatigueHigh)
	trend := historyShare(history)

	sum := unit(weightHeartRate*hr +
		weightSpO2*spo2 +
		weightTemperature*temp +
		weightGas*gas +
		weightFatigue*fatigue +
		weightHistory*trend)

	res := model.Assessment{
		Components: map[string]int{
			ParamHeartRate:   percent(hr),
			ParamSpO2:        percent(spo2),
			ParamTemperature: percent(temp),
			ParamGas:         percent(gas),
			ParamFatigue:     percent(fatigue),
			ParamHistory:     percent(trend),
		},
	}

	if reasons := emergencyReasons(r); len(reasons) != 0 {
		res.Status = model.StatusEmergency
		res.RiskScore = band(90, 100, sum)
		res.Reasons = reasons
		return res
	}
	if reasons := warningReasons(r); len(reasons) != 0 {
		res.Status = model.StatusWarning
		res.RiskScore = band(70, 89, sum)
		res.Reasons = reasons
		return res
	}
	res.Status = model.StatusSafe
	res.RiskScore = band(0, 69, sum)
	res.Reasons = []string{"all parameters within safe limits"}
	return res
}

func (m Classifier) zoneFactor(zone string) float64 {
	f, ok := m.zoneSensitivity[model.NormalizeZone(zone)]
	if !ok || f <= 0 || math.IsNaN(f) {
		return 1
	}
	return f
}

func emergencyReasons(r model.Reading) []string {
	reasons := make([]string, 0)
	if r.HeartRate >= EmergencyHeartRate {
		reasons = append(reasons, fmt.Sprintf("heart rate %.0f >= %.0f", r.HeartRate, EmergencyHeartRate))
	}
	if r.SpO2 <= EmergencySpO2 {
		reasons = append(reasons, fmt.Sprintf("SpO2 %.0f%% <= %.0f%%", r.SpO2, EmergencySpO2))
	}
	if r.Gas >= EmergencyGas {
		reasons = append(reasons, fmt.Sprintf("gas %.0f ppm >= %.0f ppm", r.Gas, EmergencyGas))
	}
	if r.Fatigue == model.FatigueHigh {
		reasons = append(reasons, "critical fatigue")
	}
	return reasons
}

func warningReasons(r model.Reading) []string {
	reasons := make([]string, 0)
	if r.HeartRate >= WarningHeartRate {
		reasons = append(reasons, fmt.Sprintf("heart rate %.0f >= %.0f", r.HeartRate, WarningHeartRate))
	}
	if r.SpO2 <= WarningSpO2 {
		reasons = append(reasons, fmt.Sprintf("SpO2 %.0f%% <= %.0f%%", r.SpO2, WarningSpO2))
	}
	if r.Gas >= WarningGas {
		reasons = append(reasons, fmt.Sprintf("gas %.0f ppm >= %.0f ppm", r.Gas, WarningGas))
	}
	if r.Fatigue == model.FatigueMedium {
		reasons = append(reasons, "elevated fatigue")
	}
	return reasons
}

// Clamps the reading into sensor ranges. NaN takes the worst value of the range
func sanitize(r model.Reading) model.Reading {
	r.HeartRate = clamp(r.HeartRate, minHeartRate, maxHeartRate, maxHeartRate)
	r.SpO2 = clamp(r.SpO2, minSpO2, maxSpO2, minSpO2)
	r.Temperature = clamp(r.Temperature, minTemperature, maxTemperature, maxTemperature)
	r.Gas = clamp(r.Gas, minGas, maxGas, maxGas)
	r.Fatigue = model.ClampFatigue(int(r.Fatigue))
	return r
}

func clamp(v, low, high, worst float64) float64 {
	if math.IsNaN(v) {
		return worst
	}
	return math.Max(low, math.Min(high, v))
}

// Share of the last readings of the history that were not SAFE
func historyShare(history []model.Reading) float64 {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) == 0 {
		return 0
	}
	n := 0
	for _, h := range history {
		if h.Status.Level() > 0 {
			n++
		}
	}
	return float64(n) / float64(len(history))
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// Maps s in [0,1] onto [low, high]
func band(low, high int, s float64) int {
	return low + int(math.Floor(float64(high-low)*s))
}

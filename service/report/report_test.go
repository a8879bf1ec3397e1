package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kirsrus/safetywatch/model"
)

type reportStoreFake struct {
	readings []model.Reading
	alerts   []model.Alert
	from, to time.Time
}

func (s *reportStoreFake) ReadingsBetween(from, to time.Time) ([]model.Reading, error) {
	s.from, s.to = from, to
	return s.readings, nil
}

func (s *reportStoreFake) AlertsBetween(from, to time.Time) ([]model.Alert, error) {
	return s.alerts, nil
}

func TestSummarize(t *testing.T) {
	readings := []model.Reading{
		{WorkerID: "W-002", HeartRate: 100, SpO2: 95, Temperature: 37, Gas: 10, Status: model.StatusSafe},
		{WorkerID: "W-001", HeartRate: 80, SpO2: 98, Temperature: 36.5, Gas: 0, Status: model.StatusSafe},
		{WorkerID: "W-001", HeartRate: 120, SpO2: 96, Temperature: 37.5, Gas: 100, Status: model.StatusWarning},
		{WorkerID: "W-001", HeartRate: 140, SpO2: 94, Temperature: 38, Gas: 50, Status: model.StatusEmergency},
	}
	alerts := []model.Alert{{WorkerID: "W-001"}, {WorkerID: "W-001"}, {WorkerID: "W-009"}}

	got := Summarize(readings, alerts)
	require.Len(t, got, 2)
	assert.Equal(t, Summary{
		WorkerID:     "W-001",
		Readings:     3,
		Alerts:       2,
		AvgHeartRate: 113.33,
		AvgSpO2:      96,
		AvgTemp:      37.33,
		AvgGas:       50,
		SafePct:      33.33,
		WarningPct:   33.33,
		EmergencyPct: 33.33,
	}, got[0])
	assert.Equal(t, "W-002", got[1].WorkerID)
	assert.Equal(t, 100.0, got[1].SafePct)
	assert.Equal(t, 0, got[1].Alerts)
}

func TestReport_Daily(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	fake := &reportStoreFake{
		readings: []model.Reading{
			{WorkerID: "W-001", Timestamp: day.Add(8 * time.Hour), HeartRate: 80, SpO2: 98, Temperature: 36.5, Status: model.StatusSafe},
		},
		alerts: []model.Alert{
			{ID: 3, WorkerID: "W-001", Type: model.AlertHazard, Priority: model.PriorityHigh, Reason: "Hazard reported: FIRE", Timestamp: day.Add(9 * time.Hour)},
		},
	}
	r, err := NewReport(fake, &ConfigReport{})
	require.NoError(t, err)

	content, err := r.Daily(day.Add(15 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, day, fake.from)
	assert.Equal(t, day.AddDate(0, 0, 1), fake.to)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SummarySheet, AlertsSheet}, f.GetSheetList())

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, summaryHeaders, rows[0])
	assert.Equal(t, "W-001", rows[1][0])
	assert.Equal(t, "2024-05-01", rows[1][1])

	rows, err = f.GetRows(AlertsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hazard reported: FIRE", rows[1][5])

	_, err = r.Daily(day)
	require.NoError(t, err)

	empty, err := NewReport(&reportStoreFake{}, &ConfigReport{})
	require.NoError(t, err)
	_, err = empty.Daily(day)
	assert.True(t, errors.IsNotFound(err))
}

package report

import (
	"bytes"
	"io/ioutil"
	"math"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/tool"
	"github.com/kirsrus/safetywatch/store"
)

const (
	SummarySheet = "Summary"
	AlertsSheet  = "Alerts"
	dateLayout   = "2006-01-02"
	timeLayout   = "2006-01-02 15:04:05"
)

var (
	summaryHeaders = []string{
		"worker_id", "date", "total_readings", "total_alerts",
		"avg_hr", "avg_spo2", "avg_temp", "avg_gas",
		"%safe", "%warning", "%emergency",
	}
	alertHeaders = []string{
		"timestamp", "id", "worker_id", "alert_type", "priority", "reason",
		"acknowledged_by", "resolved", "escalation_flag",
	}
)

// Report builds the daily shift workbook from the audit store. Built with NewReport
type Report struct {
	log         *logrus.Entry
	reportStore store.ReportStore
}

// ConfigReport configuration of Report
type ConfigReport struct {
	Log *logrus.Logger
}

// NewReport constructor of Report
func NewReport(reportStore store.ReportStore, config *ConfigReport) (*Report, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if reportStore == nil {
		return nil, errors.New("reportStore is not set")
	}
	return &Report{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "report",
			"scope":  "service",
		}),
		reportStore: reportStore,
	}, nil
}

// Summary of one worker over the day
type Summary struct {
	WorkerID     string
	Readings     int
	Alerts       int
	AvgHeartRate float64
	AvgSpO2      float64
	AvgTemp      float64
	AvgGas       float64
	SafePct      float64
	WarningPct   float64
	EmergencyPct float64
}

// Daily xlsx workbook with the per worker summary and the alert list of the day containing date.
// NotFound when the day has no readings
func (m Report) Daily(date time.Time) ([]byte, error) {
	from, to := tool.DayBounds(date)
	readings, err := m.reportStore.ReadingsBetween(from, to)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(readings) == 0 {
		return nil, errors.NotFoundf("no data")
	}
	alerts, err := m.reportStore.AlertsBetween(from, to)
	if err != nil {
		return nil, errors.Trace(err)
	}

	summaries := Summarize(readings, alerts)
	content, err := m.workbook(from, summaries, alerts)
	if err != nil {
		return nil, errors.Annotate(err, "workbook")
	}
	m.log.Infof("daily report %s: %d workers, %d alerts", from.Format(dateLayout), len(summaries), len(alerts))
	return content, nil
}

// Summarize groups the readings by worker, ordered by worker id
func Summarize(readings []model.Reading, alerts []model.Alert) []Summary {
	byWorker := make(map[string]*Summary)
	for _, r := range readings {
		s, ok := byWorker[r.WorkerID]
		if !ok {
			s = &Summary{WorkerID: r.WorkerID}
			byWorker[r.WorkerID] = s
		}
		s.Readings++
		s.AvgHeartRate += r.HeartRate
		s.AvgSpO2 += r.SpO2
		s.AvgTemp += r.Temperature
		s.AvgGas += r.Gas
		switch r.Status {
		case model.StatusEmergency:
			s.EmergencyPct++
		case model.StatusWarning:
			s.WarningPct++
		default:
			s.SafePct++
		}
	}
	for _, a := range alerts {
		if s, ok := byWorker[a.WorkerID]; ok {
			s.Alerts++
		}
	}

	res := make([]Summary, 0, len(byWorker))
	for _, s := range byWorker {
		n := float64(s.Readings)
		s.AvgHeartRate = round2(s.AvgHeartRate / n)
		s.AvgSpO2 = round2(s.AvgSpO2 / n)
		s.AvgTemp = round2(s.AvgTemp / n)
		s.AvgGas = round2(s.AvgGas / n)
		s.SafePct = round2(s.SafePct / n * 100)
		s.WarningPct = round2(s.WarningPct / n * 100)
		s.EmergencyPct = round2(s.EmergencyPct / n * 100)
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WorkerID < res[j].WorkerID })
	return res
}

func (m Report) workbook(day time.Time, summaries []Summary, alerts []model.Alert) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := f.NewSheet(AlertsSheet); err != nil {
		return nil, errors.Trace(err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	rows := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []interface{}{
			s.WorkerID, day.Format(dateLayout), s.Readings, s.Alerts,
			s.AvgHeartRate, s.AvgSpO2, s.AvgTemp, s.AvgGas,
			s.SafePct, s.WarningPct, s.EmergencyPct,
		})
	}
	if err := writeSheet(f, SummarySheet, summaryHeaders, rows, headerStyle); err != nil {
		return nil, errors.Trace(err)
	}

	rows = make([][]interface{}, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []interface{}{
			a.Timestamp.Format(timeLayout), a.ID, a.WorkerID, string(a.Type), string(a.Priority), a.Reason,
			a.AcknowledgedBy, a.Resolved, a.Escalation,
		})
	}
	if err := writeSheet(f, AlertsSheet, alertHeaders, rows, headerStyle); err != nil {
		return nil, errors.Trace(err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return errors.Trace(err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return errors.Trace(err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return errors.Trace(err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Trace(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Trace(err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package db

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/validator"
	"github.com/kirsrus/safetywatch/store"
)

const (
	cacheDuration = 10 * time.Minute
	cacheCleared  = time.Hour
)

// Db access to the audit database. Built with NewDb
type Db struct {
	ctx       context.Context
	log       *logrus.Entry
	db        *gorm.DB
	validator *validator.Validator

	userCache *cache.Cache
}

// ConfigDb configuration of NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
}

// NewDb constructor of Db
func NewDb(ctx context.Context, config *ConfigDb) (store.DbStore, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.DbFile == "" {
		return nil, errors.New("database file is not set")
	}

	conn, err := gorm.Open(sqlite.Open(config.DbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "open database file")
	}
	err = conn.AutoMigrate(User{}, Worker{}, Reading{}, Alert{}, Message{})
	if err != nil {
		return nil, errors.Annotate(err, "migrate database")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		validator: validator.Get(),
		db:        conn,

		userCache: cache.New(cacheDuration, cacheCleared),
	}

	return &db, nil
}

// IsNotFound checks that err means the records were not found
func (m Db) IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsNotFound(err) || errors.Cause(err) == gorm.ErrRecordNotFound
}

// User gets a login by name
func (m Db) User(username string) (*model.User, error) {
	if username == "" {
		return nil, errors.NotValidf("empty username")
	}
	if cached, ok := m.userCache.Get(username); ok {
		user := cached.(model.User)
		return &user, nil
	}

	var user User
	err := m.db.Where("username = ?", username).Take(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFoundf("user %q", username)
		}
		return nil, errors.Trace(err)
	}

	result := user.ToUser()
	m.userCache.Set(username, result, cache.DefaultExpiration)
	return &result, nil
}

// SaveReading appends a classified reading
func (m Db) SaveReading(reading model.Reading) error {
	var row Reading
	row.FromReading(reading)
	if err := m.db.Create(&row).Error; err != nil {
		return errors.Annotatef(err, "save reading of %s", reading.WorkerID)
	}
	return nil
}

// SaveAlert inserts or updates an alert by its id
func (m Db) SaveAlert(alert model.Alert) error {
	var row Alert
	row.FromAlert(alert)

	var stored Alert
	err := m.db.Where("alert_id = ?", alert.ID).Take(&stored).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		err = m.db.Create(&row).Error
	case err == nil:
		err = m.db.Model(&stored).Updates(row.updates()).Error
	}
	if err != nil {
		return errors.Annotatef(err, "save alert %d", alert.ID)
	}
	return nil
}

// SaveMessage inserts or updates a message by its id
func (m Db) SaveMessage(message model.Message) error {
	var row Message
	row.FromMessage(message)

	var stored Message
	err := m.db.Where("message_id = ?", message.ID).Take(&stored).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		err = m.db.Create(&row).Error
	case err == nil:
		err = m.db.Model(&stored).Updates(row.updates()).Error
	}
	if err != nil {
		return errors.Annotatef(err, "save message %d", message.ID)
	}
	return nil
}

// ReadingsBetween readings with from <= timestamp < to
func (m Db) ReadingsBetween(from, to time.Time) ([]model.Reading, error) {
	var rows []Reading
	err := m.db.Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("worker_id").Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Reading, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToReading())
	}
	return result, nil
}

// AlertsBetween alerts raised with from <= timestamp < to
func (m Db) AlertsBetween(from, to time.Time) ([]model.Alert, error) {
	var rows []Alert
	err := m.db.Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp").Order("alert_id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Alert, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToAlert())
	}
	return result, nil
}

// Workers registered workers ordered by worker id
func (m Db) Workers() ([]model.WorkerInfo, error) {
	var rows []Worker
	if err := m.db.Order("worker_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.WorkerInfo, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToWorkerInfo())
	}
	return result, nil
}

// SetWorker registers a worker and its login. The login name is the worker id
func (m Db) SetWorker(info model.WorkerInfo, pin string) (bool, error) {
	if err := m.validator.Validate(&info); err != nil {
		return false, errors.Trace(err)
	}
	info.Zone = model.NormalizeZone(info.Zone)

	added := false
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var worker Worker
		err := tx.Where("worker_id = ?", info.WorkerID).Take(&worker).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			if pin == "" {
				return errors.NotValidf("pin of new worker %s", info.WorkerID)
			}
			worker = Worker{WorkerID: info.WorkerID, Name: info.Name, Zone: info.Zone}
			if err := tx.Create(&worker).Error; err != nil {
				return errors.Trace(err)
			}
			added = true
		case err != nil:
			return errors.Trace(err)
		default:
			err = tx.Model(&worker).Updates(map[string]interface{}{
				"name": info.Name,
				"zone": info.Zone,
			}).Error
			if err != nil {
				return errors.Trace(err)
			}
		}

		if pin == "" {
			return nil
		}
		return m.setUser(tx, User{
			Username: info.WorkerID,
			Role:     string(model.RoleWorker),
			WorkerID: info.WorkerID,
		}, pin)
	})
	if err != nil {
		return false, errors.Annotatef(err, "set worker %s", info.WorkerID)
	}
	if added {
		m.log.Infof("worker %s (%s) registered", info.WorkerID, info.Name)
	}
	return added, nil
}

// SetAdmin creates or updates the admin login
func (m Db) SetAdmin(username, password string) error {
	if username == "" || password == "" {
		return errors.NotValidf("admin credentials")
	}
	err := m.setUser(m.db, User{
		Username: username,
		Role:     string(model.RoleAdmin),
	}, password)
	return errors.Annotate(err, "set admin")
}

// Stores the login, the hash is only rewritten when the password changed
func (m Db) setUser(tx *gorm.DB, user User, password string) error {
	defer m.userCache.Delete(user.Username)

	var stored User
	err := tx.Where("username = ?", user.Username).Take(&stored).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return errors.Trace(err)
	}
	if err == nil && stored.Role == user.Role &&
		bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(password)) == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Trace(err)
	}
	user.PasswordHash = string(hash)

	if stored.ID == 0 {
		return errors.Trace(tx.Create(&user).Error)
	}
	return errors.Trace(tx.Model(&stored).Updates(map[string]interface{}{
		"role":          user.Role,
		"worker_id":     user.WorkerID,
		"password_hash": user.PasswordHash,
	}).Error)
}

// LastIDs highest stored alert and message ids
func (m Db) LastIDs() (uint64, uint64, error) {
	var alertID, messageID uint64
	err := m.db.Model(&Alert{}).Select("COALESCE(MAX(alert_id), 0)").Row().Scan(&alertID)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	err = m.db.Model(&Message{}).Select("COALESCE(MAX(message_id), 0)").Row().Scan(&messageID)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	return alertID, messageID, nil
}

// Clean removes readings, resolved alerts and acknowledged messages older than days days.
// A zero or negative value keeps everything
func (m Db) Clean(days int) error {
	if days <= 0 {
		return nil
	}
	lastDate := calculateDate(time.Now(), days)

	res := m.db.Where("timestamp < ?", lastDate).Delete(&Reading{})
	if res.Error != nil {
		return errors.Annotate(res.Error, "clean readings")
	}
	readings := res.RowsAffected

	res = m.db.Where("resolved = ? AND timestamp < ?", true, lastDate).Delete(&Alert{})
	if res.Error != nil {
		return errors.Annotate(res.Error, "clean alerts")
	}
	alerts := res.RowsAffected

	res = m.db.Where("acknowledged = ? AND timestamp < ?", true, lastDate).Delete(&Message{})
	if res.Error != nil {
		return errors.Annotate(res.Error, "clean messages")
	}

	if readings+alerts+res.RowsAffected > 0 {
		m.log.Infof("archive cleaned before %s: %d readings, %d alerts, %d messages",
			lastDate.Format("2006-01-02"), readings, alerts, res.RowsAffected)
	}
	return nil
}

// Start of the day days days before now
func calculateDate(now time.Time, days int) time.Time {
	y, mn, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, mn, d, 0, 0, 0, 0, now.Location())
}

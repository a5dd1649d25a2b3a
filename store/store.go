package store

import (
	"fmt"
	"time"

	"github.com/duetlabs/duet/entity"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SessionStore persists the session's steering state so a run can resume
// where it stopped. Exchange durability lives with each host's memory; this
// holds only the point and the per-host arcs.
type SessionStore struct {
	db        *gorm.DB
	sessionID string
}

type PointRecord struct {
	SessionID string `gorm:"primaryKey"`
	State     datatypes.JSONType[entity.PointState]
	UpdatedAt time.Time
}

func (PointRecord) TableName() string {
	return "session_points"
}

type ArcRecord struct {
	SessionID string `gorm:"primaryKey"`
	HostID    string `gorm:"primaryKey"`
	State     datatypes.JSONType[entity.ArcState]
	UpdatedAt time.Time
}

func (ArcRecord) TableName() string {
	return "session_arcs"
}

func NewSessionStore(dbPath, sessionID string) (*SessionStore, error) {
	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", dbPath)),
		&gorm.Config{},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open session database")
	}
	if err := db.AutoMigrate(&PointRecord{}, &ArcRecord{}); err != nil {
		return nil, errors.Wrapf(err, "failed to migrate session tables")
	}
	return &SessionStore{db: db, sessionID: sessionID}, nil
}

func (s *SessionStore) SavePoint(state entity.PointState) error {
	record := PointRecord{
		SessionID: s.sessionID,
		State:     datatypes.NewJSONType(state),
	}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrapf(err, "failed to save point state")
	}
	return nil
}

// LoadPoint returns the persisted point state, reporting false when the
// session has none yet.
func (s *SessionStore) LoadPoint() (entity.PointState, bool, error) {
	var record PointRecord
	err := s.db.Where("session_id = ?", s.sessionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.PointState{}, false, nil
	}
	if err != nil {
		return entity.PointState{}, false, errors.Wrapf(err, "failed to load point state")
	}
	return record.State.Data(), true, nil
}

func (s *SessionStore) SaveArc(hostID string, state entity.ArcState) error {
	record := ArcRecord{
		SessionID: s.sessionID,
		HostID:    hostID,
		State:     datatypes.NewJSONType(state),
	}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrapf(err, "failed to save arc state for %s", hostID)
	}
	return nil
}

func (s *SessionStore) LoadArc(hostID string) (entity.ArcState, bool, error) {
	var record ArcRecord
	err := s.db.Where("session_id = ? AND host_id = ?", s.sessionID, hostID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.ArcState{}, false, nil
	}
	if err != nil {
		return entity.ArcState{}, false, errors.Wrapf(err, "failed to load arc state for %s", hostID)
	}
	return record.State.Data(), true, nil
}

// Reset drops the session's steering state. Used by the CLI --fresh flag.
func (s *SessionStore) Reset() error {
	if err := s.db.Where("session_id = ?", s.sessionID).Delete(&PointRecord{}).Error; err != nil {
		return errors.Wrapf(err, "failed to reset point state")
	}
	if err := s.db.Where("session_id = ?", s.sessionID).Delete(&ArcRecord{}).Error; err != nil {
		return errors.Wrapf(err, "failed to reset arc state")
	}
	return nil
}

func (s *SessionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}

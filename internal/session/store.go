package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore persists sessions and request logs in a relational database.
// SQLite is the default; MySQL and PostgreSQL are selected by DSN prefix.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database for the DSN and runs migrations
func NewGormStore(dsn string) (*GormStore, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Session{}, &RequestLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session schema: %w", err)
	}

	logrus.WithField("dialect", db.Dialector.Name()).Debug("Session store ready")
	return &GormStore{db: db}, nil
}

// dialectorFor selects the database driver based on the DSN shape
func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case dsn == "":
		return nil, errors.New("database dsn is required")
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	default:
		// Anything else is treated as a SQLite path
		return sqlite.Open(dsn), nil
	}
}

// Get returns the session for the key, or nil when none exists
func (s *GormStore) Get(ctx context.Context, key string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).First(&sess, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save upserts the session
func (s *GormStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(sess).Error
}

// GetParentID implements Link
func (s *GormStore) GetParentID(ctx context.Context, key string) (*string, error) {
	sess, err := s.Get(ctx, key)
	if err != nil || sess == nil {
		return nil, err
	}
	return sess.ParentID, nil
}

// SetParentID implements Link
func (s *GormStore) SetParentID(ctx context.Context, key, value string) error {
	sess, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &Session{Key: key}
	}
	sess.ParentID = &value
	return s.Save(ctx, sess)
}

// RecordRequest implements RequestLogStore
func (s *GormStore) RecordRequest(ctx context.Context, entry *RequestLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// RecentRequests returns the most recent request logs, newest first
func (s *GormStore) RecentRequests(ctx context.Context, limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []RequestLog
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

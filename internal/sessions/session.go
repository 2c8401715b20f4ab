package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/protocol"
)

// Session is a game server process that has registered the port it is
// listening on.
type Session struct {
	ID           string `gorm:"primaryKey"`
	IP           string
	Port         int
	RegisteredAt time.Time
}

func (s *Session) toProtocol() protocol.Session {
	return protocol.Session{ID: s.ID, IP: s.IP, Port: s.Port}
}

// OpenDatabase connects to the database engine named in the config and
// migrates the sessions table.
func OpenDatabase(cfg *core.Config) (*gorm.DB, error) {
	// By default only log errors but enable full SQL query prints-to-console with debug mode
	log := logger.Default.LogMode(logger.Error)
	if cfg.Debugging.DatabaseLoggingEnabled {
		log = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Database.Engine {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Filename)
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.Database.Engine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}
	return db, nil
}

// CloseDatabase closes the connection pool underneath db.
func CloseDatabase(db *gorm.DB) error {
	database, err := db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}

// FindSession returns the Session with the given id, or nil if there is no
// match or it registered before the since cutoff.
func FindSession(db *gorm.DB, id string, since time.Time) (*Session, error) {
	var session Session
	err := db.Where("id = ?", id).First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if session.RegisteredAt.Before(since) {
		return nil, nil
	}
	return &session, nil
}

// SaveSession persists the Session, replacing any earlier registration with
// the same id.
func SaveSession(db *gorm.DB, session *Session) error {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(session).Error
}


package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
	"github.com/walehn/reader-study-backend/internal/utils"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the study database. DB_DRIVER selects postgres (default) or
// sqlite; the sqlite mode is the original single-file deployment and
// runs with one open connection so writers serialize.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := utils.GetEnv("DB_DRIVER", "postgres", log)

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", "results/reader_study.db", log)
		log.Info("Opening sqlite database...", "path", path)
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return nil, fmt.Errorf("failed to access sqlite pool: %w", dbErr)
			}
			sqlDB.SetMaxOpenConns(1)
		}
	default:
		host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		port := utils.GetEnv("POSTGRES_PORT", "5432", log)
		user := utils.GetEnv("POSTGRES_USER", "postgres", log)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		name := utils.GetEnv("POSTGRES_NAME", "reader_study", log)

		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		log.Info("Connecting to Postgres...")
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
	}
	if err != nil {
		serviceLog.Error("Failed to open database", "driver", driver, "error", err)
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating study tables...")
	err := s.db.AutoMigrate(
		&types.Reader{},
		&types.ReaderToken{},
		&types.StudyConfig{},
		&types.StudySession{},
		&types.SessionProgress{},
		&types.StudyResult{},
		&types.LesionMark{},
		&types.AuditLog{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Models lists every table owned by this service.
func Models() []any {
	return []any{
		&models.Purchase{},
		&models.Entitlement{},
		&models.BillingWebhookEvent{},
	}
}

// SetupDatabase connects using DB_DRIVER (postgres, mysql or sqlite),
// retrying a few times while the database comes up, and migrates the schema.
// It panics when no connection can be established.
func SetupDatabase() *gorm.DB {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", "postgres"))
	dialector, err := dialectorFor(driver)
	if err != nil {
		panic(err)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			if err = db.AutoMigrate(Models()...); err == nil {
				return db
			}
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	panic(err)
}

func dialectorFor(driver string) (gorm.Dialector, error) {
	switch driver {
	case "postgres", "postgresql":
		if dsn := env.GetEnv("DB_DSN", ""); dsn != "" {
			return postgres.Open(dsn), nil
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_NAME", ""),
			env.GetEnv("DB_PORT", "5432"),
			env.GetEnv("DB_SSLMODE", "disable"),
		)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := env.GetEnv("DB_DSN", "")
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				env.GetEnv("DB_USER", ""),
				env.GetEnv("DB_PASSWORD", ""),
				env.GetEnv("DB_HOST", "127.0.0.1"),
				env.GetEnv("DB_PORT", "3306"),
				env.GetEnv("DB_NAME", ""),
			)
		}
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), nil
	case "sqlite":
		return sqlite.Open(env.GetEnv("DB_DSN", "file:coursegate.db?_pragma=busy_timeout(5000)")), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

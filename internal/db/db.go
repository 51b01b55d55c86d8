package db

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rifa-app/internal/config"
	"rifa-app/internal/models"
)

// Open connects to the configured database. postgres gives real row-level
// locks; libsql (Turso) and sqlite serialize writers at the database level.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabaseDriver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDriver == "postgres" {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdle)
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpen)
	} else {
		// one writer at a time, BEGIN blocks instead of failing with SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return gdb, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return postgres.Open(cfg.DatabaseURL), nil
	case "libsql":
		if cfg.DatabaseURL == "" || cfg.TursoAuthToken == "" {
			return nil, fmt.Errorf("DATABASE_URL and TURSO_AUTH_TOKEN must be set")
		}
		return sqlite.New(sqlite.Config{
			DriverName: "libsql",
			DSN:        withAuthToken(cfg.DatabaseURL, cfg.TursoAuthToken),
		}), nil
	case "sqlite", "":
		return sqlite.Open(cfg.DatabaseURL), nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
}

func withAuthToken(dsn, token string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "authToken=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Migrate creates or updates every table.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.SetupJoinTable(&models.Purchase{}, "Tickets", &models.PurchaseTicket{}); err != nil {
		return err
	}
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		log.Printf("Error creating tables: %v", err)
		return err
	}
	return nil
}

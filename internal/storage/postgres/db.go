package postgres

import (
	"database/sql"
	"fmt"

	"alarming/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects the database/sql pool through the pgx stdlib driver.
// Params: postgres settings from config.
// Returns: verified connection pool or error.
func Open(settings config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(settings.MaxOpenConns)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

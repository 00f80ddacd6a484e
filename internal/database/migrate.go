package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed schema.sql
var schema string

// Migrate applies the embedded schema. Statements are IF NOT EXISTS so the
// call is safe on every startup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	log.Println("Database schema up to date")
	return nil
}

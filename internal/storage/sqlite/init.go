package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite journal at path and creates the assets table if
// it doesn't exist. One row per downloaded media file; re-downloads upsert
// on (game_id, kind).
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY,
		game_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		url TEXT,
		local_path TEXT,
		downloaded_at DATETIME,
		UNIQUE(game_id, kind)
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

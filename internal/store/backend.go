package store

import (
	"log/slog"
	"path/filepath"
	"strings"

	"taskdesk/internal/storage"
	"taskdesk/internal/storage/filestore"
	"taskdesk/internal/storage/sqlite"
)

// OpenBackend picks a storage backend from the data file extension: .db,
// .sqlite and .sqlite3 use SQLite, everything else is a JSON or YAML file.
func OpenBackend(path string, logger *slog.Logger) (storage.Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return sqlite.Open(path, logger)
	}
	return filestore.Open(path, logger)
}

// Package schemas provides embedded SQL migration files.
package schemas

import "embed"

// Migrations contains the SQL migration files of every database,
// one directory per database.
//
//go:embed migrations/notes/*.sql migrations/audio/*.sql
var Migrations embed.FS

const (
	NotesDir = "migrations/notes"
	AudioDir = "migrations/audio"
)

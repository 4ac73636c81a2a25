package plugin

import (
	"context"
	"database/sql"
	"time"
)

// Config is read access to one plugin's section of the server
// configuration. Keys are relative to that section: the source plugin
// asks for "tick_interval", not "plugins.source.tick_interval". The
// host backs this with Viper, but nothing here exposes it.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Store is the shared database handed to every plugin. Plugins own
// their tables outright and evolve them through their own migration
// chain; nothing enforces the separation beyond naming discipline.
type Store interface {
	// DB exposes the underlying handle for queries and statements.
	DB() *sql.DB

	// Migrate brings the plugin's schema up to date. Applied versions
	// are tracked per plugin name, so chains from different plugins
	// do not interfere.
	Migrate(ctx context.Context, plugin string, migrations []Migration) error
}

// Migration is one step in a plugin's schema chain. Versions start at
// 1 and must be contiguous. Up runs inside a transaction together with
// the bookkeeping row, so a failed step leaves no trace.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

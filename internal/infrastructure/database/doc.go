// Package database provides SQLite connectivity for the bridge's audit tables.
//
// The irrigation model itself is memory-resident and rebuilt from the cloud
// on every start. SQLite only keeps an append-only record of zone runs so
// watering history survives restarts and can be queried over the API.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from an fs.FS (embedded by package migrations)
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database

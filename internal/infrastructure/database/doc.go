// Package database provides SQLite connectivity for SiteReport Core.
//
// SQLite holds the identity tables (users, roles, permissions), the
// single-node session store tables and the audit log. Connections are
// opened with WAL mode, a busy timeout and foreign keys enabled.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database

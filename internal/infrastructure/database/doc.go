// Package database provides SQLite connectivity for the mesh provisioner.
//
// The provisioner keeps its configuration database (network key,
// application keys, node records) in a single SQLite file opened here.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file holds key material and is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are embedded by the top-level migrations package, which
// registers its filesystem in MigrationsFS from init.
package database

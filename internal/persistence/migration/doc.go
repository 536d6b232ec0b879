// Package migration applies versioned SQL files to a database.
//
// Migration files live in an fs.FS (usually an embed.FS owned by the storage
// backend) and follow the naming convention {version}_{description}.sql, for
// example "0001_initial_schema.sql". Applied versions are tracked in a
// schema_migrations table so every file runs exactly once.
//
// Backends provide an Executor for their driver:
//
//	manager := migration.NewManager(migration.NewScanner(files, "."), executor, logger)
//	applied, err := manager.Run(ctx)
package migration

// Package postgres implements store.Store using pgx/v5 with raw SQL.
// Every mutation is a single conditional UPDATE, so any number of worker
// processes can share one table. Schema migrations are embedded SQL files
// applied with golang-migrate.
package postgres

package sqlstore

import (
	"github.com/jmoiron/sqlx"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

func init() {
	sqlx.BindDriver(DuckDB.Driver, sqlx.QUESTION)
}

// Dialect binds a database/sql driver to its native column types.
type Dialect struct {
	Name   string
	Driver string
	types  map[storage.ColumnType]string
	// journalDDL creates the cycle journal when the backend has no migration runner.
	journalDDL string
}

var (
	DuckDB = Dialect{
		Name:   "duckdb",
		Driver: "duckdb",
		types: map[storage.ColumnType]string{
			storage.Int64:   "BIGINT",
			storage.Float64: "DOUBLE",
			storage.Text:    "VARCHAR",
			storage.Bool:    "BOOLEAN",
		},
		journalDDL: `CREATE TABLE IF NOT EXISTS ingest_cycles (
			id            VARCHAR PRIMARY KEY,
			pipeline      VARCHAR NOT NULL,
			from_block    BIGINT NOT NULL DEFAULT 0,
			rows_written  BIGINT NOT NULL DEFAULT 0,
			outcome       VARCHAR NOT NULL,
			stage         VARCHAR NOT NULL DEFAULT '',
			error_message VARCHAR NOT NULL DEFAULT '',
			started_at    TIMESTAMP NOT NULL,
			finished_at   TIMESTAMP NOT NULL
		)`,
	}

	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		types: map[storage.ColumnType]string{
			storage.Int64:   "BIGINT",
			storage.Float64: "DOUBLE PRECISION",
			storage.Text:    "TEXT",
			storage.Bool:    "BOOLEAN",
		},
	}
)

func (d Dialect) columnType(t storage.ColumnType) string {
	if s, ok := d.types[t]; ok {
		return s
	}
	return d.types[storage.Text]
}

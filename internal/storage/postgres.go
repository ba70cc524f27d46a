package storage

import (
	_ "github.com/lib/pq"
)

// PostgresStore keeps runs in a PostgreSQL database reached through lib/pq.
type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{sqlStore: sqlStore{dsn: dsn, dialect: postgresDialect}}
}

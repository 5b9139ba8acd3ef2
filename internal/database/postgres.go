package database

import (
	"database/sql"
)

type PgFiresideRepository struct {
	conn *sql.DB
}

func NewPgFiresideRepository(dsn string) (*PgFiresideRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgFiresideRepository{conn: db}, nil
}

func (db *PgFiresideRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgFiresideRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

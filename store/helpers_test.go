package store_test

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func pgxNoRows() error { return pgx.ErrNoRows }

func uniqueViolationErr() error { return &pgconn.PgError{Code: "23505"} }

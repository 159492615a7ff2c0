package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, q := range schema {
		mock.ExpectExec(regexp.QuoteMeta(q)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, CreateTables(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTablesStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS items").WillReturnError(errors.New("permission denied"))

	err = CreateTables(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}

package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/models"
	"pricewatch/storage"
)

var (
	itemCols = []string{"id", "name", "position", "current_price", "min_price", "max_price", "best_url", "image_url", "last_updated", "price_history", "history_dates"}
	siteCols = []string{"id", "item_id", "url", "selector", "scraper", "current_price", "last_updated", "history", "history_dates"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestGetItem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)
	updated := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM items WHERE id = \\$1").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(
			"i1", "Laptop", 0, 15.0, 15.0, 20.0, "https://a.example/p", nil, updated,
			"{20,15}", `{"2024-03-01T12:00:00Z","2024-03-02T12:00:00Z"}`,
		))
	mock.ExpectQuery("SELECT (.+) FROM sites WHERE item_id = \\$1 ORDER BY seq").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows(siteCols).
			AddRow("s1", "i1", "https://a.example/p", "", "simple", 15.0, updated, "{20,15}", `{"2024-03-01 12:00:00+00","2024-03-02 12:00:00+00"}`).
			AddRow("s2", "i1", "https://b.example/p", ".price", "", nil, nil, "{}", "{}"))

	it, err := repo.GetItem(context.Background(), "i1")
	require.NoError(t, err)

	assert.Equal(t, "Laptop", it.Name)
	require.NotNil(t, it.CurrentPrice)
	assert.Equal(t, 15.0, *it.CurrentPrice)
	assert.Nil(t, it.ImageURL)
	assert.Equal(t, []float64{20, 15}, it.PriceHistory)
	require.Len(t, it.HistoryDates, 2)
	assert.True(t, it.HistoryDates[1].Equal(updated))

	require.Len(t, it.Sites, 2)
	assert.Equal(t, models.ScraperSimple, it.Sites[0].Scraper)
	require.Len(t, it.Sites[0].HistoryDates, 2)
	assert.True(t, it.Sites[0].HistoryDates[0].Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Nil(t, it.Sites[1].CurrentPrice)
	assert.Equal(t, ".price", it.Sites[1].Selector)
	assert.Empty(t, it.Sites[1].History)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM items WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(itemCols))

	_, err := repo.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListItemsAttachesSites(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM items ORDER BY position, id").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("i1", "First", 0, nil, nil, nil, nil, nil, nil, "{}", "{}").
			AddRow("i2", "Second", 1, nil, nil, nil, nil, nil, nil, "{}", "{}"))
	mock.ExpectQuery("SELECT (.+) FROM sites ORDER BY item_id, seq").
		WillReturnRows(sqlmock.NewRows(siteCols).
			AddRow("s1", "i1", "https://a.example", "", "", nil, nil, "{}", "{}").
			AddRow("s2", "i2", "https://b.example", "", "", nil, nil, "{}", "{}").
			AddRow("s3", "i2", "https://c.example", "", "", nil, nil, "{}", "{}").
			AddRow("orphan", "gone", "https://d.example", "", "", nil, nil, "{}", "{}"))

	items, err := repo.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Len(t, items[0].Sites, 1)
	require.Len(t, items[1].Sites, 2)
	assert.Equal(t, "s3", items[1].Sites[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListItemsEmptySkipsSites(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM items").WillReturnRows(sqlmock.NewRows(itemCols))

	items, err := repo.ListItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveItemReplacesSites(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	site := models.Site{ID: "s1", URL: "https://a.example"}
	site.RecordPrice(15, at)
	it := models.Item{ID: "i1", Name: "Laptop", Position: 2, Sites: []models.Site{site, {ID: "s2", URL: "https://b.example"}}}
	it.RecomputeAggregates(at)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO items").
		WithArgs("i1", "Laptop", 2, 15.0, 15.0, 15.0, "https://a.example", nil, at, "{15}", `{"2024-03-01T12:00:00Z"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM sites WHERE item_id = \\$1").
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO sites").
		WithArgs(0, "s1", "i1", "https://a.example", "", "", 15.0, at, "{15}", `{"2024-03-01T12:00:00Z"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sites").
		WithArgs(1, "s2", "i1", "https://b.example", "", "", nil, nil, "{}", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveItem(context.Background(), it))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveItemsRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO items").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.SaveItems(context.Background(), []models.Item{{ID: "i1", Name: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save item i1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewItemRepository(db)

	mock.ExpectExec("DELETE FROM items WHERE id = \\$1").WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM items WHERE id = \\$1").WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteItem(context.Background(), "i1"))
	assert.ErrorIs(t, repo.DeleteItem(context.Background(), "i1"), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

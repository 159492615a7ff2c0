package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/models"
)

func sampleItem(id string, pos int) models.Item {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	site := models.Site{ID: id + "-s1", URL: "https://shop.example/" + id}
	site.RecordPrice(19.99, at)
	it := models.Item{ID: id, Name: "Item " + id, Position: pos, Sites: []models.Site{site}}
	it.RecomputeAggregates(at)
	return it
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.SaveItems(ctx, []models.Item{sampleItem("b", 1), sampleItem("a", 0)}))
	require.NoError(t, store.SaveItem(ctx, sampleItem("c", 2)))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})

	got, err := store.GetItem(ctx, "b")
	require.NoError(t, err)
	require.Len(t, got.Sites, 1)
	assert.Equal(t, []float64{19.99}, got.Sites[0].History)
	require.NotNil(t, got.CurrentPrice)
	assert.Equal(t, 19.99, *got.CurrentPrice)
	assert.True(t, got.Sites[0].HistoryDates[0].Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	got.Name = "renamed"
	got.Sites[0].History[0] = 1
	again, err := store.GetItem(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Item b", again.Name, "returned items must not alias stored state")
	assert.Equal(t, 19.99, again.Sites[0].History[0])

	require.NoError(t, store.DeleteItem(ctx, "b"))
	_, err = store.GetItem(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteItem(ctx, "b"), ErrNotFound)

	require.NoError(t, store.SaveDomainSetting(ctx, models.DomainSetting{Domain: "zeta.example", Scraper: models.ScraperSimple}))
	require.NoError(t, store.SaveDomainSetting(ctx, models.DomainSetting{
		Domain: "alpha.example", Scraper: models.ScraperPuppeteer, PriceSelectors: []string{".p"},
	}))
	settings, err := store.ListDomainSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "alpha.example", settings[0].Domain)
	assert.Equal(t, []string{".p"}, settings[0].PriceSelectors)

	require.NoError(t, store.ReplaceDomainSettings(ctx, []models.DomainSetting{{Domain: "only.example", Scraper: models.ScraperAuto}}))
	settings, err = store.ListDomainSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "only.example", settings[0].Domain)

	require.NoError(t, store.DeleteDomainSetting(ctx, "only.example"))
	assert.ErrorIs(t, store.DeleteDomainSetting(ctx, "only.example"), ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	store, err := openBolt(filepath.Join(t.TempDir(), "nested", "pricewatch.db"))
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, store)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricewatch.db")
	ctx := context.Background()

	store, err := openBolt(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveItem(ctx, sampleItem("x", 0)))
	require.NoError(t, store.Close())

	store, err = openBolt(path)
	require.NoError(t, err)
	defer store.Close()

	it, err := store.GetItem(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Item x", it.Name)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("Memory", "", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore("bbolt", " ", "", nil)
	assert.ErrorContains(t, err, "requires a path")

	_, err = NewStore("postgres", "", "postgres://x", nil)
	assert.ErrorContains(t, err, "not available")

	called := ""
	s, err = NewStore("postgres", "", "postgres://db", func(url string) (Store, error) {
		called = url
		return NewMemoryStore(), nil
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, "postgres://db", called)

	_, err = NewStore("s3", "", "", nil)
	assert.ErrorContains(t, err, "unsupported storage type")
}

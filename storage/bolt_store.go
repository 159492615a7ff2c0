package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"pricewatch/models"
)

const (
	itemBucket    = "items"
	settingBucket = "domain_settings"
)

// boltStore implements a Store backed by BoltDB. Values are JSON documents keyed
// by item ID or domain.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{itemBucket, settingBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) ListItems(_ context.Context) ([]models.Item, error) {
	var items []models.Item
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, itemBucket)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var it models.Item
			if err := json.Unmarshal(v, &it); err != nil {
				return fmt.Errorf("decode item %s: %w", k, err)
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByPosition(items)
	return items, nil
}

func (b *boltStore) GetItem(_ context.Context, id string) (models.Item, error) {
	var it models.Item
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, itemBucket)
		if err != nil {
			return err
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &it)
	})
	return it, err
}

func (b *boltStore) SaveItem(ctx context.Context, item models.Item) error {
	return b.SaveItems(ctx, []models.Item{item})
}

func (b *boltStore) SaveItems(_ context.Context, items []models.Item) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, itemBucket)
		if err != nil {
			return err
		}
		for _, it := range items {
			raw, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("encode item %s: %w", it.ID, err)
			}
			if err := bucket.Put([]byte(it.ID), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltStore) DeleteItem(_ context.Context, id string) error {
	return b.deleteKey(itemBucket, id)
}

func (b *boltStore) ListDomainSettings(_ context.Context) ([]models.DomainSetting, error) {
	var out []models.DomainSetting
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, settingBucket)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var s models.DomainSetting
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode domain setting %s: %w", k, err)
			}
			out = append(out, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSettings(out)
	return out, nil
}

func (b *boltStore) SaveDomainSetting(_ context.Context, setting models.DomainSetting) error {
	raw, err := json.Marshal(setting)
	if err != nil {
		return fmt.Errorf("encode domain setting: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, settingBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(setting.Domain), raw)
	})
}

func (b *boltStore) ReplaceDomainSettings(_ context.Context, settings []models.DomainSetting) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(settingBucket)) != nil {
			if err := tx.DeleteBucket([]byte(settingBucket)); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket([]byte(settingBucket))
		if err != nil {
			return err
		}
		for _, s := range settings {
			raw, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("encode domain setting %s: %w", s.Domain, err)
			}
			if err := bucket.Put([]byte(s.Domain), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltStore) DeleteDomainSetting(_ context.Context, domain string) error {
	return b.deleteKey(settingBucket, domain)
}

func (b *boltStore) deleteKey(name, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketFor(tx, name)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

func bucketFor(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket missing", name)
	}
	return bucket, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"

	"agentstore/internal/common"
)

// KV is the key-value view over a store. Values are opaque JSON text.
type KV struct {
	store *Store
}

// NewKV returns the key-value view over the store.
func NewKV(s *Store) *KV {
	return &KV{store: s}
}

// Set upserts a key. updated_at is bumped on every write; created_at is
// preserved across overwrites.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	now := nowUnix()
	_, err := kv.store.db.NewInsert().
		Model(&KVModel{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return storageErr(err)
}

// Get returns the value for key, or ErrNotFound.
func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	var row KVModel
	err := kv.store.db.NewSelect().Model(&row).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", storageErr(err)
	}
	return row.Value, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	_, err := kv.store.db.NewDelete().
		Model((*KVModel)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return storageErr(err)
}

// Keys returns all keys in lexicographic order.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := kv.store.db.NewSelect().
		Model((*KVModel)(nil)).
		Column("key").
		Order("key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, storageErr(err)
	}
	return keys, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists the token in an embedded badger database. It is the
// default durable store for the command line client.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) a badger database at dir. An
// empty dir opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Load(ctx context.Context) (string, error) {
	var token []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(TokenKey))
		if err != nil {
			return err
		}
		token, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(token), nil
}

func (b *BadgerStore) Save(ctx context.Context, token string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(TokenKey), []byte(token))
	})
}

func (b *BadgerStore) Delete(ctx context.Context) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(TokenKey))
	})
}

// Close releases the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

package session

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "scan_session"

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Put stores a value under key
func (b *BoltStore) Put(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(value))
	})
}

// Get retrieves the value stored under key
func (b *BoltStore) Get(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid inside the transaction
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Clear drops and recreates the bucket
func (b *BoltStore) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("deleting bucket: %w", err)
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

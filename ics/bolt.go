package ics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

//BoltStore keeps states in one bucket of a bbolt database
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	log    *zap.Logger
}

//OpenBolt opens or creates the database at path and makes sure the bucket exists
func OpenBolt(path, bucket string, logger *zap.Logger) (*BoltStore, error) {
	if bucket == "" {
		bucket = "fxics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open state database %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create bucket %s", bucket)
	}
	return &BoltStore{db: db, bucket: []byte(bucket), log: logger}, nil
}

//Save stores the state under key, replacing what was there
func (b *BoltStore) Save(ctx context.Context, key string, s *State) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := marshalState(s)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), data)
	})
	if err != nil {
		return errors.Wrapf(err, "save state %s", key)
	}
	b.log.Debug("saved state", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

//Load returns the state stored under key
func (b *BoltStore) Load(ctx context.Context, key string) (*State, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "%s", key)
		}
		//v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalState(data)
}

//Delete removes the state stored under key
func (b *BoltStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket.Get([]byte(key)) == nil {
			return errors.Wrapf(ErrNotFound, "%s", key)
		}
		return bucket.Delete([]byte(key))
	})
}

//Keys lists the stored keys in order
func (b *BoltStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

//Close releases the database file
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Package boltstore persists registered clients in a single bbolt file so
// registrations survive restarts of a single-node deployment.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	clientsBucket = "clients"
	metaBucket    = "meta"

	schemaVersionKey     = "schema_version"
	currentSchemaVersion = 1

	openTimeout = 5 * time.Second
)

var _ clients.Repo = (*ClientRepo)(nil)

// ClientRepo stores clients as JSON keyed by client_id. bbolt keeps keys
// sorted, so List pages in client_id order.
type ClientRepo struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*ClientRepo, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "[boltstore.Open] creating %s", dir)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "[boltstore.Open] %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(clientsBucket)); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		version := make([]byte, 8)
		binary.LittleEndian.PutUint64(version, currentSchemaVersion)
		return meta.Put([]byte(schemaVersionKey), version)
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[boltstore.Open] initialising buckets")
	}
	return &ClientRepo{db: db}, nil
}

func (r *ClientRepo) Close() error {
	return r.db.Close()
}

// SchemaVersion returns the schema version recorded in the file.
func (r *ClientRepo) SchemaVersion() (uint64, error) {
	var version uint64
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(metaBucket)).Get([]byte(schemaVersionKey))
		if b != nil {
			version = binary.LittleEndian.Uint64(b)
		}
		return nil
	})
	return version, err
}

func (r *ClientRepo) Upsert(client *clients.Client) error {
	if client == nil || client.ID == "" {
		return errors.New("[ClientRepo.Upsert] client id cannot be empty")
	}
	data, err := json.Marshal(client)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Upsert] marshal")
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(clientsBucket)).Put([]byte(client.ID), data)
	})
}

func (r *ClientRepo) Delete(clientID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(clientsBucket)).Delete([]byte(clientID))
	})
}

func (r *ClientRepo) Get(clientID string) (*clients.Client, error) {
	var c *clients.Client
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(clientsBucket)).Get([]byte(clientID))
		if data == nil {
			return oautherrors.ErrNotFound
		}
		var err error
		c, err = decodeClient(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns clients in client_id order. A limit of zero returns everything after offset.
func (r *ClientRepo) List(offset, limit int) ([]*clients.Client, error) {
	var list []*clients.Client
	err := r.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket([]byte(clientsBucket)).Cursor()
		i := 0
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			if i < offset {
				i++
				continue
			}
			if limit > 0 && len(list) >= limit {
				break
			}
			c, err := decodeClient(v)
			if err != nil {
				return err
			}
			list = append(list, c)
			i++
		}
		return nil
	})
	return list, err
}

// decodeClient copies out of bbolt's memory map, which is only valid inside the transaction.
func decodeClient(data []byte) (*clients.Client, error) {
	var c clients.Client
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decoding client")
	}
	return &c, nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket  = []byte("sessions")
	callIndexBucket = []byte("call_index")
)

// BoltStore persists sessions in a single bbolt file: one bucket of JSON
// records keyed by session id and one bucket mapping call id to session id.
type BoltStore struct {
	opts Options
	db   *bolt.DB
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string, opts Options) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(callIndexBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session buckets: %w", err)
	}
	return &BoltStore{opts: opts.withDefaults(), db: db}, nil
}

func (b *BoltStore) Close() error { return b.db.Close() }

func load(bk *bolt.Bucket, id string) (*Session, error) {
	raw := bk.Get([]byte(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func save(bk *bolt.Bucket, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return bk.Put([]byte(s.ID), raw)
}

func (b *BoltStore) Create(_ context.Context, callID, callerID string) (*Session, error) {
	var out *Session
	err := b.db.Update(func(tx *bolt.Tx) error {
		sb, ib := tx.Bucket(sessionsBucket), tx.Bucket(callIndexBucket)
		if callID != "" && ib.Get([]byte(callID)) != nil {
			return ErrCallInUse
		}
		if b.opts.MaxSessions > 0 && keyCount(sb) >= b.opts.MaxSessions {
			return ErrCapacityExceeded
		}
		s := newSession(b.opts.NewID(), callID, callerID, b.opts.Now())
		if err := save(sb, s); err != nil {
			return err
		}
		if callID != "" {
			if err := ib.Put([]byte(callID), []byte(s.ID)); err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	return out, err
}

func (b *BoltStore) Get(ctx context.Context, id string) (*Session, error) {
	return b.Update(ctx, id, func(*Session) error { return nil })
}

func (b *BoltStore) GetByCallID(ctx context.Context, callID string) (*Session, error) {
	var id string
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(callIndexBucket).Get([]byte(callID))
		if v == nil {
			return ErrNotFound
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, id)
}

func (b *BoltStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := b.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(sessionsBucket)
		prev, err := load(sb, id)
		if err != nil {
			return err
		}
		next, err := commit(prev, fn, b.opts.Now())
		if err != nil {
			return err
		}
		out = next
		return save(sb, next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltStore) End(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error { return remove(tx, id) })
}

func (b *BoltStore) EndByCallID(_ context.Context, callID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		ib := tx.Bucket(callIndexBucket)
		v := ib.Get([]byte(callID))
		if v == nil {
			return nil
		}
		id := string(v)
		if err := ib.Delete([]byte(callID)); err != nil {
			return err
		}
		return remove(tx, id)
	})
}

func remove(tx *bolt.Tx, id string) error {
	sb, ib := tx.Bucket(sessionsBucket), tx.Bucket(callIndexBucket)
	s, err := load(sb, id)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		// undecodable record; drop it anyway
		return sb.Delete([]byte(id))
	}
	if s.CallID != "" {
		if v := ib.Get([]byte(s.CallID)); v != nil && string(v) == id {
			if err := ib.Delete([]byte(s.CallID)); err != nil {
				return err
			}
		}
	}
	return sb.Delete([]byte(id))
}

func (b *BoltStore) SweepExpired(_ context.Context) (int, error) {
	now := b.opts.Now()
	n := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		var expired []string
		err := tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var s Session
			if err := json.Unmarshal(v, &s); err != nil {
				expired = append(expired, string(k))
				return nil
			}
			if now.Sub(s.LastActivity) > b.opts.TTL {
				expired = append(expired, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids mutating a bucket while iterating it
		for _, id := range expired {
			if err := remove(tx, id); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

func (b *BoltStore) Count(_ context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		n = keyCount(tx.Bucket(sessionsBucket))
		return nil
	})
	return n, err
}

func keyCount(bk *bolt.Bucket) int {
	n := 0
	c := bk.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

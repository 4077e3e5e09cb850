package splitcheck

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dividircuenta/split-check/internal/extraction"
)

const (
	sessionBucketName = "sessions"
	stateBucketName   = "split_states"
)

// Session is one parsed receipt: the extracted items plus receipt
// metadata, keyed by a generated id. Items are immutable once stored.
type Session struct {
	ID             string            `json:"id"`
	Items          []extraction.Item `json:"items"`
	ReceiptTotal   *float64          `json:"receipt_total,omitempty"`
	RestaurantName string            `json:"restaurant_name,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// DB defines the interface for session persistence.
type DB interface {
	// SaveSession saves a receipt session
	SaveSession(session *Session) error

	// GetSession retrieves a session by ID
	GetSession(id string) (*Session, error)

	// DeleteSession removes a session and its split state
	DeleteSession(id string) error

	// SaveState saves the split state for a session
	SaveState(sessionID string, state *SplitState) error

	// GetState retrieves the split state for a session; a missing
	// state returns (nil, nil)
	GetState(sessionID string) (*SplitState, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(stateBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveSession saves a receipt session.
func (b *BoltDB) SaveSession(session *Session) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return bucket.Put([]byte(session.ID), data)
	})
}

// GetSession retrieves a session by ID.
func (b *BoltDB) GetSession(id string) (*Session, error) {
	var session *Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session not found: %s", id)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session and its split state.
func (b *BoltDB) DeleteSession(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(sessionBucketName)).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(stateBucketName)).Delete([]byte(id))
	})
}

// SaveState saves the split state for a session. Writes are
// last-write-wins against the session key.
func (b *BoltDB) SaveState(sessionID string, state *SplitState) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucketName))
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshaling split state: %w", err)
		}
		return bucket.Put([]byte(sessionID), data)
	})
}

// GetState retrieves the split state for a session. A fresh session
// without a saved state yields (nil, nil).
func (b *BoltDB) GetState(sessionID string) (*SplitState, error) {
	var state *SplitState
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucketName))
		data := bucket.Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

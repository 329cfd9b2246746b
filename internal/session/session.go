// Package session keeps bearer tokens server-side, keyed by an opaque
// session id that the browser holds in a cookie.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const bucketName = "sessions"

// ErrNotFound is returned for unknown or deleted sessions
var ErrNotFound = errors.New("session not found")

// Session is one signed-in browser
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Treasurer bool      `json:"treasurer"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for session persistence
type Store interface {
	// Create stores a new session for token and returns it
	Create(token, userID string, treasurer bool) (*Session, error)

	// Get retrieves a session by ID
	Get(id string) (*Session, error)

	// Delete removes a session
	Delete(id string) error

	// Close closes the underlying database
	Close() error
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens or creates the session database at path
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
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Create stores a new session
func (b *BoltStore) Create(token, userID string, treasurer bool) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		Treasurer: treasurer,
		CreatedAt: b.now(),
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(s.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves a session by ID
func (b *BoltStore) Get(id string) (*Session, error) {
	var s *Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes a session; deleting an unknown id is not an error
func (b *BoltStore) Delete(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

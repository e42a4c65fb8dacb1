package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"logingate/model"
)

// CredentialStore verifies a username/password pair. A mismatch is
// (false, nil); errors are reserved for backend failures.
type CredentialStore interface {
	Verify(ctx context.Context, username, password string) (bool, error)
}

var (
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ CredentialStore = (*GormCredentialStore)(nil)
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareWithDummy burns a bcrypt comparison for unknown users so lookups
// for missing and existing accounts take the same time.
func compareWithDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

func compareHash(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing password hash: %w", err)
	}
}

// MemoryCredentialStore holds bcrypt hashes keyed by username.
type MemoryCredentialStore struct {
	hashes map[string]string
}

// NewMemoryCredentialStore rejects entries that are not bcrypt hashes.
func NewMemoryCredentialStore(hashes map[string]string) (*MemoryCredentialStore, error) {
	copied := make(map[string]string, len(hashes))
	for user, hash := range hashes {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("user %q: %w", user, err)
		}
		copied[user] = hash
	}
	return &MemoryCredentialStore{hashes: copied}, nil
}

// NewMemoryCredentialStoreFromPlain hashes the given plaintext passwords.
func NewMemoryCredentialStoreFromPlain(passwords map[string]string) (*MemoryCredentialStore, error) {
	hashes := make(map[string]string, len(passwords))
	for user, password := range passwords {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password for %q: %w", user, err)
		}
		hashes[user] = string(hash)
	}
	return &MemoryCredentialStore{hashes: hashes}, nil
}

func (s *MemoryCredentialStore) Verify(_ context.Context, username, password string) (bool, error) {
	hash, ok := s.hashes[username]
	if !ok {
		compareWithDummy(password)
		return false, nil
	}
	return compareHash(hash, password)
}

// GormCredentialStore looks users up in the MySQL user table.
type GormCredentialStore struct {
	db *gorm.DB
}

func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

// Close releases the underlying connection pool.
func (s *GormCredentialStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting mysql pool: %w", err)
	}
	return sqlDB.Close()
}

// OpenMySQL connects gorm to dsn.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}
	return db, nil
}

func (s *GormCredentialStore) Verify(ctx context.Context, username, password string) (bool, error) {
	var user model.User
	result := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, "1").
		First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			compareWithDummy(password)
			return false, nil
		}
		return false, fmt.Errorf("querying user: %w", result.Error)
	}
	return compareHash(user.HashedPassword, password)
}

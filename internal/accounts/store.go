package accounts

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"pearlgen/internal/shared/logger"
)

// ErrNotFound is returned by Find when no account exists for an email.
var ErrNotFound = errors.New("account not found")

// Store is the durable repository of provisioned accounts.
type Store interface {
	Save(account *Account) error
	Find(email string) (*Account, error)
	All() ([]*Account, error)
	SetStatus(email string, status Status) error
}

// FileStore keeps one JSON file per account under a directory. Save is
// atomic (temp file, fsync, rename) so a crash never leaves a truncated
// record behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create accounts dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeFilename makes an email safe to use as a filename.
func sanitizeFilename(name string) string {
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(safe) > 200 {
		safe = safe[:200]
	}
	return safe
}

// path derives the account filename: the sanitized email for readability
// plus a short hash of the raw email, so distinct addresses that sanitize
// to the same text cannot overwrite each other.
func (s *FileStore) path(email string) string {
	sum := sha256.Sum256([]byte(email))
	return filepath.Join(s.dir, fmt.Sprintf("%s-%x.json", sanitizeFilename(email), sum[:4]))
}

// Save upserts the account record by email. The record is on disk before
// Save returns.
func (s *FileStore) Save(account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	final := s.path(account.Email)
	tmp, err := os.CreateTemp(s.dir, ".account-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Find loads the account for an email, or ErrNotFound.
func (s *FileStore) Find(email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("malformed account file for %s: %w", email, err)
	}
	return &account, nil
}

// All loads every stored account. Malformed or incomplete files are skipped
// so one bad file cannot break loading.
func (s *FileStore) All() ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	l := logger.WithComponent("AccountStore")
	var result []*Account
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			l.Warn().Str("file", entry.Name()).Msg("Skipping malformed account file.")
			continue
		}
		if account.Email == "" || account.Password == "" {
			continue
		}
		result = append(result, &account)
	}
	return result, nil
}

// SetStatus records an external status change, e.g. a session-reuse
// consumer marking an account failed after its session stopped
// authenticating.
func (s *FileStore) SetStatus(email string, status Status) error {
	account, err := s.Find(email)
	if err != nil {
		return err
	}
	account.Status = status
	return s.Save(account)
}

// UsedEmails returns the set of emails already bound to stored accounts.
func UsedEmails(s Store) (map[string]bool, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(all))
	for _, a := range all {
		used[a.Email] = true
	}
	return used, nil
}

// UsedProxies returns the set of proxy IDs already bound to stored accounts.
func UsedProxies(s Store) (map[string]bool, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(all))
	for _, a := range all {
		if a.Proxy != "" {
			used[a.Proxy] = true
		}
	}
	return used, nil
}

// Package credentials finds and stores the API key. The key is never
// logged or written anywhere except the keyring or the legacy key file.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// EnvVar overrides every stored key.
	EnvVar = "EASYDEPLOY_API_KEY"
	// Service is the keyring service name.
	Service = "easydeploy"
	// legacyFileName is the key file in the home directory.
	legacyFileName = ".easydeploy"
)

// ErrNoCredential is returned when no API key is configured anywhere.
var ErrNoCredential = errors.New("no API key configured; run 'easydeploy login'")

// Source identifies where a key was found or stored.
type Source string

const (
	SourceEnv     Source = "environment"
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
)

// Store looks up and persists the API key for one API base URL.
type Store struct {
	account  string
	filePath string
	getenv   func(string) string
}

// Option configures a Store.
type Option func(*Store)

// WithFile overrides the legacy key file path.
func WithFile(path string) Option {
	return func(s *Store) {
		s.filePath = path
	}
}

// WithGetenv overrides environment lookup.
func WithGetenv(fn func(string) string) Option {
	return func(s *Store) {
		s.getenv = fn
	}
}

// NewStore creates a store keyed by the API base URL.
func NewStore(baseURL string, opts ...Option) *Store {
	s := &Store{
		account: baseURL,
		getenv:  os.Getenv,
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.filePath = filepath.Join(home, legacyFileName)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the API key from, in order, the environment, the OS
// keyring and the legacy key file.
func (s *Store) Lookup() (string, Source, error) {
	if key := strings.TrimSpace(s.getenv(EnvVar)); key != "" {
		return key, SourceEnv, nil
	}

	// An unavailable keyring falls through to the file.
	if key, err := keyring.Get(Service, s.account); err == nil && key != "" {
		return key, SourceKeyring, nil
	}

	key, err := s.readFile()
	if err != nil {
		return "", "", err
	}
	if key != "" {
		return key, SourceFile, nil
	}
	return "", "", ErrNoCredential
}

// Save stores key in the keyring, or in the legacy key file when no
// keyring is available.
func (s *Store) Save(key string) (Source, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("API key is empty")
	}

	if err := keyring.Set(Service, s.account, key); err == nil {
		return SourceKeyring, nil
	}

	if err := s.writeFile(key); err != nil {
		return "", err
	}
	return SourceFile, nil
}

// Delete removes the key from the keyring and the legacy key file.
func (s *Store) Delete() error {
	var errs []error
	if err := keyring.Delete(Service, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		errs = append(errs, fmt.Errorf("failed to delete keyring entry: %w", err))
	}
	if s.filePath != "" {
		if err := os.Remove(s.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete key file: %w", err))
		}
	}
	return errors.Join(errs...)
}

type keyFile struct {
	APIKey string `json:"api_key"`
}

func (s *Store) readFile() (string, error) {
	if s.filePath == "" {
		return "", nil
	}
	// Missing, unreadable or directory paths mean no key.
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return "", nil
	}

	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("key file %s is not valid JSON: %w", s.filePath, err)
	}
	return strings.TrimSpace(f.APIKey), nil
}

func (s *Store) writeFile(key string) error {
	if s.filePath == "" {
		return errors.New("no home directory for the key file")
	}
	data, err := json.Marshal(keyFile{APIKey: key})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Mask shortens key for display, keeping only its last four characters.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

// Package client talks to the billscan API on behalf of the terminal
// client and keeps its session on disk.
package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is used when neither the session nor a flag names a server.
const DefaultBaseURL = "http://localhost:8000"

// Session is everything the client remembers between runs. The shell owns
// it: it is loaded once at startup and saved explicitly after a change.
type Session struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`
	Email   string `yaml:"email,omitempty"`
	Name    string `yaml:"name,omitempty"`
}

// LoggedIn reports whether the session holds a token. The server decides
// whether it is still valid.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}

// SignedOut returns the session without credentials, keeping the server.
func (s Session) SignedOut() Session {
	return Session{BaseURL: s.BaseURL}
}

// SessionStore loads and saves a Session.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
}

// FileStore keeps the session in a YAML file readable only by its owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultSessionPath returns session.yaml under the user config directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "billscan", "session.yaml"), nil
}

// Path returns the file backing the store.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session. A missing file is an empty session.
func (f *FileStore) Load() (Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{BaseURL: DefaultBaseURL}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session file: %w", err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parsing session file: %w", err)
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s, nil
}

// Save writes the session through a temporary file so a crash never
// leaves a truncated token behind.
func (f *FileStore) Save(s Session) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("securing session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

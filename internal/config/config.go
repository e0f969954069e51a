// Package config loads process configuration and picks the reminder store.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/keyring"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/storage"
	"github.com/julianstephens/nudge/internal/storage/postgres"
	"github.com/julianstephens/nudge/internal/storage/sqlite"
)

// EnvDBConnection names the variable that may carry a PostgreSQL connection string.
const EnvDBConnection = "NUDGE_DB_CONNECTION"

// Source records where a connection string came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceDefault Source = "default"
)

// Connection is the resolved store location.
type Connection struct {
	Value  string
	Source Source
}

// IsPostgres reports whether the connection targets PostgreSQL.
func (c Connection) IsPostgres() bool {
	return isPostgres(c.Value)
}

func isPostgres(s string) bool {
	return strings.HasPrefix(s, "postgres://") ||
		strings.HasPrefix(s, "postgresql://") ||
		strings.Contains(s, "host=")
}

// Load reads the given .env files into the process environment. Missing files
// are skipped and variables already set are left alone.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		logger.Debug("Loaded environment file", "path", f)
	}
	return nil
}

// ResolveConnection picks the store location. An explicit flag wins, then
// NUDGE_DB_CONNECTION, then the OS keyring, then the default sqlite path.
func ResolveConnection(flag string) Connection {
	if flag != "" && flag != constants.DefaultConfigPath {
		return Connection{Value: flag, Source: SourceFlag}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBConnection)); v != "" {
		return Connection{Value: v, Source: SourceEnv}
	}
	connStr, err := keyring.GetConnectionString()
	switch {
	case err == nil:
		return Connection{Value: connStr, Source: SourceKeyring}
	case !errors.Is(err, keyring.ErrNotFound):
		logger.Debug("Keyring lookup failed", "error", err)
	}
	return Connection{Value: constants.DefaultConfigPath, Source: SourceDefault}
}

// OpenStore builds the storage provider for c without connecting to it.
// Passwords are only tolerated in strings that came from the keyring.
func OpenStore(c Connection) (storage.Provider, error) {
	if c.IsPostgres() {
		if _, err := postgres.ValidateConnString(c.Value); err != nil {
			if !(errors.Is(err, postgres.ErrEmbeddedCredentials) && c.Source == SourceKeyring) {
				return nil, err
			}
		}
		return postgres.New(c.Value), nil
	}
	path, err := ExpandPath(c.Value)
	if err != nil {
		return nil, err
	}
	return sqlite.NewStore(path), nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ConfigDir is the directory holding the sqlite file, logs and backups.
func ConfigDir(c Connection) (string, error) {
	if c.IsPostgres() {
		c.Value = constants.DefaultConfigPath
	}
	path, err := ExpandPath(c.Value)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

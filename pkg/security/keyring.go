package security

import (
	"fmt"
	"sort"

	"github.com/playpasshq/playpass-backend/pkg/config"
)

// Keyring holds the versioned ticket-signing secrets. Every known version
// verifies; only the active version signs new tickets, so rotation is a
// config change with old tickets staying valid until they expire.
type Keyring struct {
	keys   map[string][]byte
	active string
}

// NewKeyring builds a keyring from config. The config layer already
// validated that the active version has an entry.
func NewKeyring(cfg config.SigningConfig) (*Keyring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys := make(map[string][]byte, len(cfg.Keys))
	for version, secret := range cfg.Keys {
		keys[version] = []byte(secret)
	}
	return &Keyring{keys: keys, active: cfg.ActiveVersion}, nil
}

// ActiveVersion returns the version used to sign new tickets.
func (k *Keyring) ActiveVersion() string {
	return k.active
}

// Key returns the secret for a version.
func (k *Keyring) Key(version string) ([]byte, error) {
	secret, ok := k.keys[version]
	if !ok {
		return nil, fmt.Errorf("unknown signing key version %q", version)
	}
	return secret, nil
}

// Versions lists all known versions in sorted order.
func (k *Keyring) Versions() []string {
	versions := make([]string, 0, len(k.keys))
	for version := range k.keys {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}

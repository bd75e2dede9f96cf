package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/util/memzero"
)

const idFilename = "identity.cbor.enc"

// ErrNoIdentity is returned when no identity has been generated yet.
var ErrNoIdentity = errors.New("no identity found; run init first")

// IdentityFileStore persists the entity identity to disk.
type IdentityFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir}
}

// Path returns the location of the encrypted identity file.
func (s *IdentityFileStore) Path() string { return filepath.Join(s.dir, idFilename) }

// SaveIdentity seals the identity with passphrase and writes it atomically,
// replacing any previous identity.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := cbor.Marshal(id)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)

	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(s.Path(), ct, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Identity{}, ErrNoIdentity
	}
	if err != nil {
		return domain.Identity{}, err
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return domain.Identity{}, err
	}
	defer memzero.Zero(pt)

	var id domain.Identity
	if err := cbor.Unmarshal(pt, &id); err != nil {
		return domain.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)

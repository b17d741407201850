package transport

import (
	"os"

	"github.com/pkg/errors"
)

// CredStore is the on-disk session credential directory. Its contents are
// opaque here; the supervisor only ever checks for it or removes it.
type CredStore struct {
	Dir string
}

func (s CredStore) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

// Purge deletes the persisted session, forcing a fresh pairing on the next
// dial.
func (s CredStore) Purge() error {
	return errors.Wrap(os.RemoveAll(s.Dir), "purge credentials")
}

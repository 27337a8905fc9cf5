package ledger

import (
	"errors"
	"fmt"

	"github.com/lox/blackjack/internal/fileutil"
)

// File is a Memory ledger that rewrites a JSON document after every change.
// Each write replaces the file atomically, so a crash loses at most the
// mutation in flight.
type File struct {
	*Memory
	path string
}

var _ Ledger = (*File)(nil)

// NewFile loads the ledger at path, or starts an empty one if the file does
// not exist yet.
func NewFile(path string, startingBalance int64, opts ...Option) (*File, error) {
	if path == "" {
		return nil, errors.New("file ledger requires a path")
	}

	m := NewMemory(startingBalance, opts...)
	if _, err := fileutil.ReadJSON(path, m.book); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if m.book.Accounts == nil {
		m.book.Accounts = make(map[string]*account)
	}

	f := &File{Memory: m, path: path}
	m.persist = f.write
	return f, nil
}

func (f *File) write(b *book) error {
	if err := fileutil.WriteJSON(f.path, b, 0o600); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrEmptyBody is returned when there is nothing to write.
var ErrEmptyBody = errors.New("empty body")

// WriteOverwrite writes data to path, creating parent directories and
// replacing any existing file.
func WriteOverwrite(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyBody
	}
	return writeFile(path, data)
}

// WritePage writes an HTML snapshot. Empty documents are written as-is.
func WritePage(path, html string) error {
	return writeFile(path, []byte(html))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ClaimTable serializes writers of the same destination across pages.
type ClaimTable struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

// NewClaimTable creates an empty claim table.
func NewClaimTable() *ClaimTable {
	return &ClaimTable{claims: make(map[string]struct{})}
}

// Claim reserves dest. It fails while another writer holds it.
func (t *ClaimTable) Claim(dest string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, held := t.claims[dest]; held {
		return false
	}
	t.claims[dest] = struct{}{}
	return true
}

// Release frees dest.
func (t *ClaimTable) Release(dest string) {
	t.mu.Lock()
	delete(t.claims, dest)
	t.mu.Unlock()
}

// Len returns the number of held claims.
func (t *ClaimTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.claims)
}

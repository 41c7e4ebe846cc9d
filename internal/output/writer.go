// Package output writes the crawl report.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer defines the interface for report writers.
type Writer interface {
	// WriteResult writes the complete crawl result
	WriteResult(result *CrawlResult) error

	// WritePage writes a single page record (for streaming)
	WritePage(page *PageRecord) error

	// WriteError writes an error (for streaming)
	WriteError(err *CrawlError) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	Stream   bool
	FilePath string
}

// NewWriter creates a new report writer. JSON is the only format.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case "json":
		return NewJSONWriter(w, config.Pretty, config.Stream)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}

// WriteFile writes result as pretty JSON to path, creating parent
// directories.
func WriteFile(path string, result *CrawlResult) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	w := NewWriter(f, Config{Format: "json", Pretty: true, FilePath: path})
	if err := w.WriteResult(result); err != nil {
		_ = w.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return w.Close()
}

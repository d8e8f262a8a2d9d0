package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/migrate"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// ErrInvalidImport is returned for import payloads that do not look like a
// journal.
var ErrInvalidImport = errors.New("invalid journal file")

// MaxImportSize bounds the payload Import reads.
const MaxImportSize = 64 << 20

// Export writes the journal as indented JSON.
func (s *Store) Export(w io.Writer) error {
	doc := s.Snapshot()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// Import replaces the journal with the document read from r. The payload
// must have an object stats, an array logs, and numeric level and exp; it
// then goes through the schema migration. Nothing changes on error.
func (s *Store) Import(ctx context.Context, r io.Reader) (migrate.Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return migrate.Result{}, fmt.Errorf("failed to read import: %w", err)
	}
	if len(data) > MaxImportSize {
		return migrate.Result{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImport, MaxImportSize)
	}
	if err := checkShape(data); err != nil {
		return migrate.Result{}, err
	}

	doc, res, err := decodeDocument(data)
	if err != nil {
		return migrate.Result{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if res.Newer {
		return res, fmt.Errorf("%w: written by a newer version (%s)", ErrInvalidImport, doc.SchemaVersion)
	}

	err = s.mutate(ctx, func(cur *schema.Document) error {
		*cur = *doc
		return nil
	})
	if err != nil {
		return migrate.Result{}, err
	}
	s.logger.Info("journal_imported", "logs", len(doc.Logs), "from_version", res.From)
	return res, nil
}

func checkShape(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	checks := []struct {
		key  string
		kind string
		ok   func(byte) bool
	}{
		{"stats", "an object", func(c byte) bool { return c == '{' }},
		{"logs", "an array", func(c byte) bool { return c == '[' }},
		{"level", "a number", isNumberStart},
		{"exp", "a number", isNumberStart},
	}
	for _, c := range checks {
		raw := bytes.TrimSpace(fields[c.key])
		if len(raw) == 0 || !c.ok(raw[0]) {
			return fmt.Errorf("%w: %s must be %s", ErrInvalidImport, c.key, c.kind)
		}
	}
	return nil
}

func isNumberStart(c byte) bool {
	return c == '-' || (c >= '0' && c <= '9')
}

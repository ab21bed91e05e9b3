// Package csvfile writes project records to a UTF-8 CSV file with a byte
// order mark so spreadsheet tools detect the Arabic text correctly.
package csvfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultLockTimeout bounds how long a write waits for another process
// holding the same output file.
const DefaultLockTimeout = 10 * time.Second

// Sink writes CSV files under a fixed directory.
type Sink struct {
	dir    string
	logger *zap.Logger

	// LockTimeout overrides DefaultLockTimeout when positive.
	LockTimeout time.Duration
}

// New returns a Sink rooted at dir. The directory is created on first write.
func New(dir string, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{dir: dir, logger: logger}, nil
}

// WriteRecords overwrites dir/name with a header row followed by one row per
// record and returns the written path.
func (s *Sink) WriteRecords(ctx context.Context, records []scraper.ProjectRecord, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if name == "" {
		name = scraper.DefaultOutputName
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("output name %q must be a plain file name", name)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", s.dir, err)
	}
	target := filepath.Join(s.dir, name)

	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return "", err
	}

	unlock, err := s.lock(ctx, target)
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := os.WriteFile(target, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write csv %s: %w", target, err)
	}
	s.logger.Debug("Wrote csv", zap.String("path", target), zap.Int("rows", len(records)))
	return target, nil
}

// lock takes an exclusive advisory lock on target's sibling .lock file so two
// runs sharing an output directory never interleave writes.
func (s *Sink) lock(ctx context.Context, target string) (func(), error) {
	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(target + ".lock")
	locked, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		return nil, fmt.Errorf("lock %s: %w", target, errors.Join(err, ctx.Err()))
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("Failed to release output lock", zap.String("path", target), zap.Error(err))
		}
	}, nil
}

// Encode writes the BOM, header, and record rows to w.
func Encode(w io.Writer, records []scraper.ProjectRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(scraper.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return fmt.Errorf("write row %s: %w", rec.Link, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadRecords parses a file produced by WriteRecords.
func ReadRecords(path string) ([]scraper.ProjectRecord, error) {
	f, err := os.Open(path) // #nosec G304 -- path is chosen by the operator.
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	return Decode(f)
}

// Decode parses CSV produced by Encode. The header must match
// scraper.Columns exactly.
func Decode(r io.Reader) ([]scraper.ProjectRecord, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("skip bom: %w", err)
		}
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(scraper.Columns)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range scraper.Columns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], col)
		}
	}
	var out []scraper.ProjectRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, scraper.RecordFromValues(row))
	}
	return out, nil
}

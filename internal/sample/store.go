package sample

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store reads and writes one JSONL series file for a single
// origin/destination pair.
type Store struct {
	path     string
	fallback *time.Location // zone applied to offset-less timestamps
}

// NewStore creates a Store for the series file at path. fallback is the zone
// used to interpret legacy timestamps written without a UTC offset; nil
// means UTC.
func NewStore(path string, fallback *time.Location) *Store {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Store{path: path, fallback: fallback}
}

// Path returns the underlying series file path.
func (st *Store) Path() string { return st.path }

// Load reads the whole series, sorted by QueryTime ascending. Blank and
// malformed lines are skipped. A missing file is an empty series, not an
// error. Duplicate timestamps are retained.
func (st *Store) Load() ([]Sample, error) {
	f, err := os.Open(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sample: open series: %w", err)
	}
	defer f.Close()

	var samples []Sample
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s, err := ParseLine(line, st.fallback)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sample: read series: %w", err)
	}
	if skipped > 0 {
		slog.Debug("sample: skipped unreadable records", "path", st.path, "count", skipped)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].QueryTime.Before(samples[j].QueryTime)
	})
	return samples, nil
}

// Append writes s as one new line at the end of the series, creating the
// file and its parent directory as needed.
func (st *Store) Append(s Sample) error {
	line, err := s.MarshalLine()
	if err != nil {
		return fmt.Errorf("sample: encode record: %w", err)
	}
	if dir := filepath.Dir(st.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sample: create series dir: %w", err)
		}
	}
	f, err := os.OpenFile(st.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sample: open series for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("sample: append record: %w", err)
	}
	return nil
}

// Prune removes records whose query_time is strictly before cutoff and
// rewrites the file atomically. Blank lines and lines that cannot be
// parsed are kept verbatim; pruning never deletes data it does not
// understand. Surviving lines are byte-identical to the input. Returns
// the number of records removed.
func (st *Store) Prune(cutoff time.Time) (int, error) {
	f, err := os.Open(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sample: open series: %w", err)
	}

	var kept [][]byte
	removed := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			kept = append(kept, line)
			continue
		}
		s, err := ParseLine(trimmed, cutoff.Location())
		if err != nil {
			kept = append(kept, line)
			continue
		}
		if s.QueryTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("sample: read series: %w", scanErr)
	}
	if removed == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	for _, line := range kept {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := writeAtomic(st.path, buf.Bytes()); err != nil {
		return 0, err
	}
	slog.Info("sample: pruned series", "path", st.path, "removed", removed, "kept", len(kept))
	return removed, nil
}

// writeAtomic replaces path with data via a temp file and rename so a crash
// mid-write cannot truncate the series.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("sample: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sample: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sample: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sample: replace series file: %w", err)
	}
	return nil
}

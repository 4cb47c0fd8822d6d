package inbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RejectedDir is the subdirectory that receives mutations that cannot apply.
const RejectedDir = "rejected"

// Write stores m as a new file in dir and returns its path. The file is
// written under a temporary name and renamed, so a watcher never sees a
// partial mutation. Names sort in creation order.
func Write(dir string, m Mutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create inbox %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal mutation: %w", err)
	}

	name := fmt.Sprintf("%020d-%s.json", stamp(), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write mutation: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to publish mutation: %w", err)
	}
	return path, nil
}

var lastStamp atomic.Int64

// stamp returns a strictly increasing nanosecond clock reading, so files
// written in one burst keep their order even on coarse clocks.
func stamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Read parses a mutation file.
func Read(path string) (Mutation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return Mutation{}, fmt.Errorf("%w: %s: %v", ErrInvalid, filepath.Base(path), err)
	}
	return m, nil
}

// Pending lists the mutation files in dir, oldest first. A missing dir has
// no pending files.
func Pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Drain applies every pending mutation in dir to target, oldest first.
// Applied files are removed and invalid ones moved to RejectedDir. Drain
// stops at the first mutation target cannot accept right now (for example
// before the replica is seeded) and returns that error, leaving it and
// everything after it in place.
func Drain(dir string, target Applier, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	paths, err := Pending(dir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, path := range paths {
		m, err := Read(path)
		if err == nil {
			err = m.Apply(target)
		}
		switch {
		case err == nil:
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return applied, fmt.Errorf("failed to remove applied mutation: %w", err)
			}
			applied++
		case errors.Is(err, ErrInvalid):
			logger.Printf("Rejecting %s: %v", filepath.Base(path), err)
			if err := reject(dir, path); err != nil {
				return applied, err
			}
		case errors.Is(err, os.ErrNotExist):
			// Picked up by a concurrent drain.
		default:
			return applied, err
		}
	}
	return applied, nil
}

func reject(dir, path string) error {
	rejected := filepath.Join(dir, RejectedDir)
	if err := os.MkdirAll(rejected, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", rejected, err)
	}
	if err := os.Rename(path, filepath.Join(rejected, filepath.Base(path))); err != nil {
		return fmt.Errorf("failed to reject %s: %w", filepath.Base(path), err)
	}
	return nil
}

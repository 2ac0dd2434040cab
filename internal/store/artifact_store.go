// Package store implements ArtifactStore: the only code in this service
// allowed to create or rename files under a run's data directory. It
// enforces that no partially written file is ever observable at its target
// name, and that no write escapes dataDir via path traversal.
//
// Every write follows the same write-to-temp-then-rename discipline with
// 0644 file and 0755 directory permissions, whether it is writing a single
// artifact or a whole batch of run artifacts.
package store

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store performs path-safe, atomic filesystem operations rooted at a single
// base directory (normally a run's directory, holding artifacts/ and
// evidence/).
type Store struct {
	base string
}

// New returns a Store rooted at base. base is created if it does not exist.
func New(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("ensure base dir %s: %w", base, err)
	}
	return &Store{base: base}, nil
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

// WrittenFile is what WriteArtifact / WriteArtifactsBatch report back.
type WrittenFile struct {
	Path string
	Size int64
}

// EnsureDir recursively creates path (relative to base) if it does not
// already exist.
func (s *Store) EnsureDir(relPath string) error {
	abs, ok := SafeJoin(s.base, relPath)
	if !ok {
		return fmt.Errorf("ensureDir: unsafe path %q", relPath)
	}
	return os.MkdirAll(abs, 0o755)
}

// WriteArtifact writes data to relPath, via a temp file in the same
// directory renamed over the target so no partial file is ever observable
// there. On any failure the temp file is unlinked.
func (s *Store) WriteArtifact(relPath string, data []byte) (WrittenFile, error) {
	results, err := s.WriteArtifactsBatch(map[string][]byte{relPath: data})
	if err != nil {
		return WrittenFile{}, err
	}
	return results[0], nil
}

// WriteArtifactsBatch writes every entry to a temp file (phase 1), then
// renames every temp file into place (phase 2). If any phase-1 write fails,
// every temp file already created is unlinked and the call fails with none
// of the target paths touched. Phase 2 renames are each individually atomic
// (same-directory POSIX rename); this is not a single atomic transaction
// across files - a directory-rename strategy would be needed for stronger
// all-or-nothing guarantees across the whole batch.
func (s *Store) WriteArtifactsBatch(entries map[string][]byte) ([]WrittenFile, error) {
	type planned struct {
		relPath string
		absPath string
		tmpPath string
		size    int64
	}

	// Stable iteration order makes failures and results reproducible.
	relPaths := make([]string, 0, len(entries))
	for rel := range entries {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	plans := make([]planned, 0, len(relPaths))
	cleanup := func() {
		for _, p := range plans {
			_ = os.Remove(p.tmpPath)
		}
	}

	for _, rel := range relPaths {
		abs, ok := SafeJoin(s.base, rel)
		if !ok {
			cleanup()
			return nil, fmt.Errorf("writeArtifactsBatch: unsafe path %q", rel)
		}
		dir := filepath.Dir(abs)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return nil, fmt.Errorf("writeArtifactsBatch: ensure dir for %q: %w", rel, err)
		}
		tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
		data := entries[rel]
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			cleanup()
			return nil, fmt.Errorf("writeArtifactsBatch: write temp for %q: %w", rel, err)
		}
		plans = append(plans, planned{relPath: rel, absPath: abs, tmpPath: tmp, size: int64(len(data))})
	}

	results := make([]WrittenFile, 0, len(plans))
	for _, p := range plans {
		if err := os.Rename(p.tmpPath, p.absPath); err != nil {
			// Best-effort cleanup of any temp files not yet renamed;
			// targets already renamed in this call stay - rename is the
			// atomic commit point per file.
			cleanup()
			return nil, fmt.Errorf("writeArtifactsBatch: rename for %q: %w", p.relPath, err)
		}
		results = append(results, WrittenFile{Path: p.relPath, Size: p.size})
	}
	return results, nil
}

// ListFilesRecursive returns every regular file under root (relative to
// base), sorted ascending, skipping any file whose name starts with
// ".tmp-". Directories with that prefix are still walked.
func (s *Store) ListFilesRecursive(root string) ([]string, error) {
	absRoot, ok := SafeJoin(s.base, root)
	if !ok {
		// An empty root means "the base itself"; SafeJoin rejects "" as
		// unsafe, so special-case it.
		if root == "" || root == "." {
			absRoot = s.base
		} else {
			return nil, fmt.Errorf("listFilesRecursive: unsafe root %q", root)
		}
	}

	var out []string
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listFilesRecursive: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// SizeOf returns the size in bytes of relPath.
func (s *Store) SizeOf(relPath string) (int64, error) {
	abs, ok := SafeJoin(s.base, relPath)
	if !ok {
		return 0, fmt.Errorf("sizeOf: unsafe path %q", relPath)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("sizeOf: %w", err)
	}
	return info.Size(), nil
}

// Open opens relPath for streaming reads (used by the evidence hasher,
// which must never load a whole file into memory).
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	abs, ok := SafeJoin(s.base, relPath)
	if !ok {
		return nil, fmt.Errorf("open: unsafe path %q", relPath)
	}
	return os.Open(abs)
}

// ReapOrphanTempFiles sweeps orphan ".tmp-*" files older than olderThan
// anywhere under root. It is safe to call concurrently with writers,
// because a ".tmp-*" file still being written by WriteArtifactsBatch has a
// fresh mtime and will not be reaped.
func (s *Store) ReapOrphanTempFiles(root string, olderThan time.Duration) (int, error) {
	absRoot, ok := SafeJoin(s.base, root)
	if !ok {
		if root == "" || root == "." {
			absRoot = s.base
		} else {
			return 0, fmt.Errorf("reapOrphanTempFiles: unsafe root %q", root)
		}
	}

	cutoff := time.Now().Add(-olderThan)
	reaped := 0
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				reaped++
			}
		}
		return nil
	})
	if err != nil {
		return reaped, fmt.Errorf("reapOrphanTempFiles: %w", err)
	}
	return reaped, nil
}

package trash

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"trashcan/internal/fileutil"
)

const (
	filesDirName   = "files"
	infoDirName    = "info"
	pendingDirName = ".pending"

	recordMode = 0o644
)

// Store manages the trash directory layout.
type Store struct {
	mu    sync.Mutex
	root  string
	roots []string
	now   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for AddedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates the store layout under root when missing and returns a Store.
func Open(root string, opts ...Option) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" || !filepath.IsAbs(root) {
		return nil, fmt.Errorf("trash root %q must be an absolute path", root)
	}
	root = filepath.Clean(root)

	for _, dir := range []string{root, filepath.Join(root, filesDirName), filepath.Join(root, infoDirName), filepath.Join(root, pendingDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}

	store := &Store{root: root, roots: []string{root}, now: time.Now}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
		store.roots = append(store.roots, resolved)
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// FilesDir returns the directory holding moved entries.
func (s *Store) FilesDir() string { return filepath.Join(s.root, filesDirName) }

// InfoDir returns the directory holding committed metadata records.
func (s *Store) InfoDir() string { return filepath.Join(s.root, infoDirName) }

func (s *Store) pendingDir() string { return filepath.Join(s.root, pendingDirName) }

// MoveIn relocates source into the files area under a collision-free name and
// commits its metadata record. When the file moved but the record could not
// be committed, the returned Entry is populated alongside ErrRecordFailed.
func (s *Store) MoveIn(ctx context.Context, source string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	clean, err := s.validateSource(source)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.occupiedNames()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: list store: %w", ErrMoveFailed, err)
	}
	entry := Entry{
		StoredName:   ResolveName(filepath.Base(clean), existing),
		OriginalPath: clean,
		AddedAt:      s.now(),
	}

	pendingPath := filepath.Join(s.pendingDir(), entry.StoredName)
	if err := fileutil.WriteFileSync(pendingPath, EncodeRecord(entry), recordMode); err != nil {
		return Entry{}, fmt.Errorf("%w: write pending record for %s: %w", ErrRecordFailed, entry.StoredName, err)
	}

	destination := filepath.Join(s.FilesDir(), entry.StoredName)
	if err := os.Rename(clean, destination); err != nil {
		_ = os.Remove(pendingPath)
		if errors.Is(err, unix.EXDEV) {
			return Entry{}, fmt.Errorf("%w: %w: %w", ErrMoveFailed, ErrCrossDevice, err)
		}
		return Entry{}, fmt.Errorf("%w: %w", ErrMoveFailed, err)
	}

	if err := os.Rename(pendingPath, filepath.Join(s.InfoDir(), entry.StoredName)); err != nil {
		return entry, fmt.Errorf("%w: commit record for %s: %w", ErrRecordFailed, entry.StoredName, err)
	}
	return entry, nil
}

// RecoverResult summarizes pending records resolved at startup.
type RecoverResult struct {
	Committed []string
	Discarded []string
}

// Recover resolves records left in the pending area by an interrupted move:
// a record whose file reached the files area is committed, any other is
// discarded.
func (s *Store) Recover(ctx context.Context) (RecoverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result RecoverResult
	names, err := listNames(s.pendingDir())
	if err != nil {
		return result, fmt.Errorf("list pending records: %w", err)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		pendingPath := filepath.Join(s.pendingDir(), name)
		present, err := fileutil.Exists(filepath.Join(s.FilesDir(), name))
		if err != nil {
			return result, fmt.Errorf("check file for pending record %s: %w", name, err)
		}
		if !present {
			if err := os.Remove(pendingPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return result, fmt.Errorf("discard pending record %s: %w", name, err)
			}
			result.Discarded = append(result.Discarded, name)
			continue
		}
		if err := os.Rename(pendingPath, filepath.Join(s.InfoDir(), name)); err != nil {
			return result, fmt.Errorf("%w: commit pending record %s: %w", ErrRecordFailed, name, err)
		}
		result.Committed = append(result.Committed, name)
	}
	return result, nil
}

// RecordError reports a record that could not be read or parsed.
type RecordError struct {
	Name string
	Err  error
}

func (e RecordError) Error() string { return fmt.Sprintf("record %s: %v", e.Name, e.Err) }

func (e RecordError) Unwrap() error { return e.Err }

// Entries reads every committed record, sorted by stored name. Records that
// cannot be read are returned separately so one bad record never hides the
// rest.
func (s *Store) Entries(ctx context.Context) ([]Entry, []RecordError, error) {
	names, err := listNames(s.InfoDir())
	if err != nil {
		return nil, nil, fmt.Errorf("list records: %w", err)
	}
	entries := make([]Entry, 0, len(names))
	var bad []RecordError
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.InfoDir(), name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			bad = append(bad, RecordError{Name: name, Err: err})
			continue
		}
		entry, err := ParseRecord(name, data)
		if err != nil {
			bad = append(bad, RecordError{Name: name, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, bad, nil
}

// Remove deletes the stored file and then its record. A file that is already
// gone still has its record removed; a file that cannot be removed keeps its
// record so the entry is retried later.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validStoredName(name) {
		return fmt.Errorf("%w: stored name %q", ErrInvalidPath, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.FilesDir(), name)); err != nil {
		return fmt.Errorf("remove file %s: %w", name, err)
	}
	if err := os.Remove(filepath.Join(s.InfoDir(), name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove record %s: %w", ErrRecordFailed, name, err)
	}
	return nil
}

// Snapshot describes the current store contents.
type Snapshot struct {
	Entries        int
	Files          int
	Pending        int
	Orphans        []string
	Dangling       []string
	Bytes          int64
}

// Snapshot counts entries and reports files without records (orphans) and
// records without files (dangling).
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := listNames(s.FilesDir())
	if err != nil {
		return Snapshot{}, fmt.Errorf("list files: %w", err)
	}
	records, err := listNames(s.InfoDir())
	if err != nil {
		return Snapshot{}, fmt.Errorf("list records: %w", err)
	}
	pending, err := listNames(s.pendingDir())
	if err != nil {
		return Snapshot{}, fmt.Errorf("list pending records: %w", err)
	}

	snap := Snapshot{Entries: len(records), Files: len(files), Pending: len(pending)}
	recordSet := toSet(records)
	fileSet := toSet(files)
	for _, name := range files {
		if _, ok := recordSet[name]; !ok {
			snap.Orphans = append(snap.Orphans, name)
		}
	}
	for _, name := range records {
		if _, ok := fileSet[name]; !ok {
			snap.Dangling = append(snap.Dangling, name)
		}
	}
	if snap.Bytes, err = fileutil.DiskUsage(s.FilesDir()); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// occupiedNames lists every name a new entry must not take: files, records
// and pending records. Callers hold s.mu.
func (s *Store) occupiedNames() ([]string, error) {
	var all []string
	for _, dir := range []string{s.FilesDir(), s.InfoDir(), s.pendingDir()} {
		names, err := listNames(dir)
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
	}
	return all, nil
}

func (s *Store) validateSource(source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !filepath.IsAbs(source) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, source)
	}
	clean := filepath.Clean(source)
	if !validStoredName(filepath.Base(clean)) {
		return "", fmt.Errorf("%w: %q has no file name", ErrInvalidPath, source)
	}
	for _, root := range s.roots {
		if within(clean, root) || within(root, clean) {
			return "", fmt.Errorf("%w: %q overlaps the trash store", ErrInvalidPath, source)
		}
	}
	return clean, nil
}

// within reports whether path equals base or lies beneath it.
func within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func validStoredName(name string) bool {
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return false
	}
	return !strings.ContainsRune(name, filepath.Separator)
}

func listNames(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

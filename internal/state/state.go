// Package state owns the on-disk bookkeeping for watched folders: a home
// directory holding one hashed subdirectory per folder, with a metadata file
// and an append-only JSONL job history inside.
package state

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HomeEnv overrides the default state home (~/.smartfolder) when set.
const HomeEnv = "SMARTFOLDER_HOME"

const (
	stateDirName     = "state"
	metadataFileName = "metadata.json"
	historyFileName  = "history.jsonl"
)

// maxHistoryLine bounds a single history record on read. Records carry tool
// call summaries, not file contents, so 1 MiB is generous.
const maxHistoryLine = 1 << 20

// FolderMetadata describes one watched folder's state directory. It is
// rewritten on every run; firstWatchedAt survives rewrites.
type FolderMetadata struct {
	FolderPath     string    `json:"folderPath"`
	Hash           string    `json:"hash"`
	FirstWatchedAt time.Time `json:"firstWatchedAt"`
	LastRunAt      time.Time `json:"lastRunAt"`
	Prompt         string    `json:"prompt,omitempty"`
}

// HistoryRecord is one line of history.jsonl: one processed file. File is
// relative to the watched folder. Exactly one of Result and Error is set.
type HistoryRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	JobID     string          `json:"jobId,omitempty"`
	File      string          `json:"file"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Store resolves and maintains per-folder state directories under home.
type Store struct {
	home string
}

// NewStore resolves the state home from SMARTFOLDER_HOME, falling back to
// ~/.smartfolder.
func NewStore() (*Store, error) {
	if h := os.Getenv(HomeEnv); h != "" {
		return &Store{home: filepath.Clean(h)}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return &Store{home: filepath.Join(home, ".smartfolder")}, nil
}

// NewStoreWithHome creates a Store rooted at a custom home (for testing).
func NewStoreWithHome(home string) *Store {
	return &Store{home: filepath.Clean(home)}
}

// Home returns the state home directory.
func (s *Store) Home() string { return s.home }

// HashID derives the stable directory name for a watched folder: the first
// 16 hex characters of the SHA-256 of its cleaned absolute path.
func HashID(folder string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("resolving folder path: %w", err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:16], nil
}

// DirFor returns the state directory path for folder without creating it.
func (s *Store) DirFor(folder string) (string, error) {
	id, err := HashID(folder)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.home, stateDirName, id), nil
}

// HistoryPath returns the history.jsonl path for folder.
func (s *Store) HistoryPath(folder string) (string, error) {
	dir, err := s.DirFor(folder)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, historyFileName), nil
}

// EnsureFolder creates the state directory for folder if needed and rewrites
// its metadata: lastRunAt is bumped, firstWatchedAt is preserved across
// restarts. It returns the state directory path.
func (s *Store) EnsureFolder(folder, prompt string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("resolving folder path: %w", err)
	}
	hash, err := HashID(abs)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.home, stateDirName, hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	metaPath := filepath.Join(dir, metadataFileName)
	now := time.Now().UTC()
	meta := FolderMetadata{
		FolderPath:     abs,
		Hash:           hash,
		FirstWatchedAt: now,
		LastRunAt:      now,
		Prompt:         prompt,
	}
	if prev, err := s.readMetadata(metaPath); err == nil && !prev.FirstWatchedAt.IsZero() {
		meta.FirstWatchedAt = prev.FirstWatchedAt
	}
	if err := saveJSON(metaPath, meta); err != nil {
		return "", err
	}
	return dir, nil
}

// Metadata reads the metadata file for folder. A missing file yields a zero
// FolderMetadata and no error.
func (s *Store) Metadata(folder string) (FolderMetadata, error) {
	dir, err := s.DirFor(folder)
	if err != nil {
		return FolderMetadata{}, err
	}
	return s.readMetadata(filepath.Join(dir, metadataFileName))
}

func (s *Store) readMetadata(path string) (FolderMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FolderMetadata{}, nil
		}
		return FolderMetadata{}, fmt.Errorf("reading folder metadata: %w", err)
	}
	var meta FolderMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return FolderMetadata{}, fmt.Errorf("parsing folder metadata: %w", err)
	}
	return meta, nil
}

// AppendHistory appends one record to the folder's history.jsonl. The state
// directory must already exist (EnsureFolder). Each record is a single
// O_APPEND write, so appenders to different folders never interleave bytes.
func (s *Store) AppendHistory(folder string, rec HistoryRecord) error {
	path, err := s.HistoryPath(folder)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling history record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending history record: %w", err)
	}
	return nil
}

// ReadHistory returns up to limit most recent records for folder, oldest
// first. limit <= 0 means all. Malformed lines are skipped rather than
// aborting the read; history is advisory, not a source of truth.
func (s *Store) ReadHistory(folder string, limit int) ([]HistoryRecord, error) {
	path, err := s.HistoryPath(folder)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	var recs []HistoryRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxHistoryLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec HistoryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning history file: %w", err)
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// saveJSON writes v to path atomically: marshal, write to a temp file in the
// same directory, then rename.
func saveJSON(path string, v any) error {
	dir := filepath.Dir(path)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		// On success the rename consumed tmpPath, so Remove is a no-op.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	closed = true
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

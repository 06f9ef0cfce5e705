// Package metadata extracts the structured description of a dropped file
// that the prompt builder hands to the model: core stats plus per-category
// sections contributed by format-specific extractors.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/smartfolder/smartfolder/internal/classify"
)

// FileMetadata is the full description of one dropped file or folder. The
// optional sections are filled by whichever extractors apply.
type FileMetadata struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	Extension string    `json:"extension,omitempty"`
	MimeType  string    `json:"mimeType,omitempty"`
	Category  string    `json:"category"`
	ModTime   time.Time `json:"modTime"`
	SHA256    string    `json:"sha256,omitempty"`

	Image   *ImageMeta   `json:"image,omitempty"`
	PDF     *PDFMeta     `json:"pdf,omitempty"`
	Audio   *AudioMeta   `json:"audio,omitempty"`
	Video   *VideoMeta   `json:"video,omitempty"`
	Archive *ArchiveMeta `json:"archive,omitempty"`
	Folder  *FolderMeta  `json:"folder,omitempty"`
}

// ImageMeta describes an image, with EXIF fields when present.
type ImageMeta struct {
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Format      string    `json:"format,omitempty"`
	TakenAt     time.Time `json:"takenAt,omitzero"`
	CameraMake  string    `json:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
}

// PDFMeta describes a PDF document.
type PDFMeta struct {
	PageCount int    `json:"pageCount"`
	Title     string `json:"title,omitempty"`
}

// AudioMeta carries the embedded tags of an audio file.
type AudioMeta struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Year   int    `json:"year,omitempty"`
	Format string `json:"format,omitempty"`
}

// VideoMeta describes an MP4-family video.
type VideoMeta struct {
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
}

// ArchiveMeta summarizes a zip archive without extracting it.
type ArchiveMeta struct {
	EntryCount       int      `json:"entryCount"`
	UncompressedSize int64    `json:"uncompressedSize"`
	TopEntries       []string `json:"topEntries,omitempty"`
}

// FolderMeta summarizes a dropped directory tree.
type FolderMeta struct {
	FileCount  int      `json:"fileCount"`
	DirCount   int      `json:"dirCount"`
	TotalBytes int64    `json:"totalBytes"`
	Extensions []string `json:"extensions,omitempty"`
	Entries    []string `json:"entries,omitempty"`
}

// Extractor contributes one optional section to FileMetadata. Available is a
// cheap capability probe; Extract may fail without failing the job.
type Extractor interface {
	Name() string
	Available(cat classify.Category, ext string) bool
	Extract(path string, meta *FileMetadata) error
}

const hashCacheSize = 1024

// Engine runs classification, hashing and the extractor chain. Hashes are
// cached by (path, size, mtime) so the same unchanged file is not re-read.
type Engine struct {
	extractors []Extractor
	hashes     *lru.Cache[string, string]
	log        *slog.Logger
}

// NewEngine returns an Engine with the default extractor chain.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	cache, _ := lru.New[string, string](hashCacheSize)
	return &Engine{
		extractors: []Extractor{
			imageExtractor{},
			pdfExtractor{},
			audioExtractor{},
			videoExtractor{},
			archiveExtractor{},
		},
		hashes: cache,
		log:    log,
	}
}

// Extract builds the FileMetadata for path. Extractor failures downgrade to
// debug logs; only stat-level failures are returned.
func (e *Engine) Extract(path string) (*FileMetadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	meta := &FileMetadata{
		Name:    filepath.Base(abs),
		Path:    abs,
		ModTime: info.ModTime().UTC(),
	}

	if info.IsDir() {
		meta.Category = classify.Folder.String()
		folder, err := summarizeFolder(abs)
		if err != nil {
			e.log.Debug("folder summary failed", "path", abs, "err", err)
		} else {
			meta.Folder = folder
			meta.SizeBytes = folder.TotalBytes
		}
		return meta, nil
	}

	meta.SizeBytes = info.Size()
	meta.Extension = strings.ToLower(filepath.Ext(abs))
	if mt, err := mimetype.DetectFile(abs); err == nil {
		meta.MimeType = mt.String()
	} else {
		e.log.Debug("mime detection failed", "path", abs, "err", err)
	}
	cat := classify.Detect(meta.Extension, meta.MimeType)
	meta.Category = cat.String()

	if sum, err := e.hashFile(abs, info); err != nil {
		e.log.Debug("hashing failed", "path", abs, "err", err)
	} else {
		meta.SHA256 = sum
	}

	for _, ex := range e.extractors {
		if !ex.Available(cat, meta.Extension) {
			continue
		}
		if err := ex.Extract(abs, meta); err != nil {
			e.log.Debug("extractor failed", "extractor", ex.Name(), "path", abs, "err", err)
		}
	}
	return meta, nil
}

// hashFile streams the file through SHA-256, consulting the cache first.
func (e *Engine) hashFile(abs string, info os.FileInfo) (string, error) {
	key := abs + "|" + strconv.FormatInt(info.Size(), 10) + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if sum, ok := e.hashes.Get(key); ok {
		return sum, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	e.hashes.Add(key, sum)
	return sum, nil
}

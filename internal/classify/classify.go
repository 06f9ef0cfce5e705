// Package classify maps file extensions and MIME types to the coarse
// categories the rest of the pipeline routes on.
package classify

import (
	"path/filepath"
	"strings"
)

// Category is the routing category of a dropped file.
type Category int

const (
	TextDocument Category = iota
	Code
	Data
	Image
	PDF
	Audio
	Video
	Office
	Archive
	Folder
)

var categoryNames = map[Category]string{
	TextDocument: "text",
	Code:         "code",
	Data:         "data",
	Image:        "image",
	PDF:          "pdf",
	Audio:        "audio",
	Video:        "video",
	Office:       "office",
	Archive:      "archive",
	Folder:       "folder",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "text"
}

// Parse is the inverse of String. Unknown names fall back to TextDocument.
func Parse(s string) Category {
	for c, name := range categoryNames {
		if name == s {
			return c
		}
	}
	return TextDocument
}

// Binary reports whether files of this category are attached as raw bytes
// rather than inline text. Text-oriented tools refuse these.
func (c Category) Binary() bool {
	switch c {
	case Image, PDF, Audio, Video, Office, Archive:
		return true
	default:
		return false
	}
}

var extCategories = map[string]Category{
	// text
	".txt": TextDocument, ".md": TextDocument, ".markdown": TextDocument,
	".rst": TextDocument, ".log": TextDocument, ".tex": TextDocument,
	".adoc": TextDocument,

	// code
	".go": Code, ".py": Code, ".js": Code, ".jsx": Code, ".ts": Code,
	".tsx": Code, ".java": Code, ".c": Code, ".h": Code, ".cpp": Code,
	".hpp": Code, ".cc": Code, ".rs": Code, ".rb": Code, ".php": Code,
	".sh": Code, ".bash": Code, ".zsh": Code, ".fish": Code, ".swift": Code,
	".kt": Code, ".scala": Code, ".lua": Code, ".pl": Code, ".r": Code,
	".sql": Code, ".html": Code, ".htm": Code, ".css": Code, ".scss": Code,
	".less": Code, ".vue": Code, ".svelte": Code, ".dart": Code, ".m": Code,
	".mm": Code, ".ex": Code, ".exs": Code, ".erl": Code, ".hs": Code,
	".clj": Code, ".ps1": Code, ".bat": Code, ".dockerfile": Code,
	".makefile": Code, ".cmake": Code, ".gradle": Code, ".zig": Code,

	// data
	".json": Data, ".csv": Data, ".tsv": Data, ".xml": Data, ".yaml": Data,
	".yml": Data, ".toml": Data, ".ini": Data, ".conf": Data, ".env": Data,
	".properties": Data, ".jsonl": Data, ".ndjson": Data, ".parquet": Data,
	".avro": Data, ".proto": Data, ".graphql": Data,

	// image
	".jpg": Image, ".jpeg": Image, ".png": Image, ".gif": Image,
	".webp": Image, ".bmp": Image, ".tiff": Image, ".tif": Image,
	".svg": Image, ".heic": Image, ".heif": Image, ".avif": Image,
	".ico": Image, ".raw": Image, ".cr2": Image, ".nef": Image,

	// pdf
	".pdf": PDF,

	// audio
	".mp3": Audio, ".wav": Audio, ".flac": Audio, ".m4a": Audio,
	".aac": Audio, ".ogg": Audio, ".oga": Audio, ".wma": Audio,
	".opus": Audio, ".aiff": Audio, ".mid": Audio, ".midi": Audio,

	// video
	".mp4": Video, ".mov": Video, ".avi": Video, ".mkv": Video,
	".webm": Video, ".m4v": Video, ".wmv": Video, ".flv": Video,
	".mpg": Video, ".mpeg": Video, ".3gp": Video,

	// office
	".doc": Office, ".docx": Office, ".xls": Office, ".xlsx": Office,
	".ppt": Office, ".pptx": Office, ".odt": Office, ".ods": Office,
	".odp": Office, ".pages": Office, ".numbers": Office, ".key": Office,
	".rtf": Office, ".epub": Office,

	// archive
	".zip": Archive, ".tar": Archive, ".gz": Archive, ".tgz": Archive,
	".bz2": Archive, ".xz": Archive, ".7z": Archive, ".rar": Archive,
	".zst": Archive, ".lz4": Archive, ".br": Archive, ".dmg": Archive,
	".iso": Archive, ".jar": Archive, ".war": Archive,
}

// Detect classifies a file from its extension and optional MIME type. The
// MIME prefixes image/, video/ and audio/ short-circuit; otherwise the
// extension decides. Unknown inputs fall back to TextDocument, which keeps
// unrecognized drops on the safest (metadata plus capped text) path.
//
// A text/ MIME never short-circuits: sniffers report text/csv for .csv and
// text/html for .html, and the extension table routes those more precisely
// than "some kind of text".
//
// Multi-dot names use the final extension only, so "backup.tar.gz" is an
// Archive by way of ".gz".
func Detect(ext, mime string) Category {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return Image
	case strings.HasPrefix(mime, "video/"):
		return Video
	case strings.HasPrefix(mime, "audio/"):
		return Audio
	}

	if c, ok := extCategories[strings.ToLower(ext)]; ok {
		return c
	}
	return TextDocument
}

// DetectName classifies by file name alone, without MIME information.
func DetectName(name string) Category {
	return Detect(filepath.Ext(name), "")
}

package metadata

import (
	"archive/zip"

	"github.com/smartfolder/smartfolder/internal/classify"
)

// maxArchiveEntries caps the listing included in metadata.
const maxArchiveEntries = 20

// zipExtensions lists the archive formats we can enumerate. Compressed
// tarballs and the rest keep core metadata only.
var zipExtensions = map[string]bool{
	".zip": true, ".jar": true, ".war": true,
}

// archiveExtractor lists zip contents without extracting them.
type archiveExtractor struct{}

func (archiveExtractor) Name() string { return "archive" }

func (archiveExtractor) Available(cat classify.Category, ext string) bool {
	return cat == classify.Archive && zipExtensions[ext]
}

func (archiveExtractor) Extract(path string, meta *FileMetadata) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	am := &ArchiveMeta{EntryCount: len(r.File)}
	for _, f := range r.File {
		am.UncompressedSize += int64(f.UncompressedSize64)
		if len(am.TopEntries) < maxArchiveEntries {
			am.TopEntries = append(am.TopEntries, f.Name)
		}
	}
	meta.Archive = am
	return nil
}

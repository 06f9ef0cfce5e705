package metadata

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/smartfolder/smartfolder/internal/classify"
)

// pdfExtractor reads the page count and document title.
type pdfExtractor struct{}

func (pdfExtractor) Name() string { return "pdf" }

func (pdfExtractor) Available(cat classify.Category, _ string) bool {
	return cat == classify.PDF
}

func (pdfExtractor) Extract(path string, meta *FileMetadata) (retErr error) {
	// The pdf library panics on some malformed documents, so contain it.
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pm := &PDFMeta{PageCount: r.NumPage()}
	if title := r.Trailer().Key("Info").Key("Title"); title.Kind() == pdf.String {
		pm.Title = title.Text()
	}
	meta.PDF = pm
	return nil
}

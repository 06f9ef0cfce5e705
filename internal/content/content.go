// Package content decides what of a file's bytes travel to the model: full
// inline text, a head-and-tail excerpt, a raw attachment when the selected
// model takes the media kind natively, or nothing beyond the metadata.
//
// Every category runs the same four steps: extract metadata (done upstream),
// gate on whether a body should be sent at all, choose full or partial mode,
// then fetch the body. Strategies implement the last three.
package content

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/smartfolder/smartfolder/internal/capability"
	"github.com/smartfolder/smartfolder/internal/classify"
	"github.com/smartfolder/smartfolder/internal/metadata"
)

// Kind says how the file content is represented in the prompt.
type Kind int

const (
	// MetadataOnly carries no content beyond the metadata block.
	MetadataOnly Kind = iota
	// FullText carries the complete file text.
	FullText
	// PartialText carries the head and tail of a larger text file.
	PartialText
	// Binary carries the raw bytes for a natively supported media kind.
	Binary
)

func (k Kind) String() string {
	switch k {
	case FullText:
		return "full"
	case PartialText:
		return "partial"
	case Binary:
		return "binary"
	default:
		return "none"
	}
}

// Mode is the body size decision within a strategy.
type Mode int

const (
	ModeFull Mode = iota
	ModePartial
)

// Limits bound how much of a file is shipped to the model. All of them are
// configuration-overridable.
type Limits struct {
	MaxFullTextBytes    int64 // full text up to this size
	MaxPartialTextBytes int64 // head/tail excerpt up to this size, nothing beyond
	HeadLines           int
	TailLines           int
	MaxImageBytes       int64
	MaxPDFBytes         int64
	MaxAudioBytes       int64
	MaxVideoBytes       int64
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxFullTextBytes:    10 * 1024,
		MaxPartialTextBytes: 100 * 1024,
		HeadLines:           50,
		TailLines:           50,
		MaxImageBytes:       5 * 1024 * 1024,
		MaxPDFBytes:         10 * 1024 * 1024,
		MaxAudioBytes:       10 * 1024 * 1024,
		MaxVideoBytes:       20 * 1024 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxFullTextBytes <= 0 {
		l.MaxFullTextBytes = def.MaxFullTextBytes
	}
	if l.MaxPartialTextBytes <= 0 {
		l.MaxPartialTextBytes = def.MaxPartialTextBytes
	}
	if l.HeadLines <= 0 {
		l.HeadLines = def.HeadLines
	}
	if l.TailLines <= 0 {
		l.TailLines = def.TailLines
	}
	if l.MaxImageBytes <= 0 {
		l.MaxImageBytes = def.MaxImageBytes
	}
	if l.MaxPDFBytes <= 0 {
		l.MaxPDFBytes = def.MaxPDFBytes
	}
	if l.MaxAudioBytes <= 0 {
		l.MaxAudioBytes = def.MaxAudioBytes
	}
	if l.MaxVideoBytes <= 0 {
		l.MaxVideoBytes = def.MaxVideoBytes
	}
	return l
}

// Content is the prepared representation of one file for prompting.
type Content struct {
	Kind      Kind
	Text      string // FullText and PartialText
	CSVHeader string // first row of a CSV or TSV, kept out of truncation
	MimeType  string // Binary
	Data      []byte // Binary
	Note      string // why the representation degraded, when it did
}

// Strategy is the per-category policy behind the common template.
type Strategy interface {
	// ShouldSendBody gates step two. A false return carries the reason.
	ShouldSendBody(meta *metadata.FileMetadata, model capability.Model) (bool, string)
	// BodyMode picks full or partial for files that passed the gate.
	BodyMode(meta *metadata.FileMetadata) Mode
	// FetchBody reads the bytes for the chosen mode.
	FetchBody(meta *metadata.FileMetadata, mode Mode) (*Content, error)
}

// Provider prepares file content under configured limits.
type Provider struct {
	limits Limits
}

// NewProvider returns a Provider. Zero fields of limits fall back to the
// defaults.
func NewProvider(limits Limits) *Provider {
	return &Provider{limits: limits.withDefaults()}
}

// For runs the template for the file described by meta. It never fails a
// job: anything unreadable degrades to MetadataOnly with the reason in Note.
func (p *Provider) For(meta *metadata.FileMetadata, model capability.Model) *Content {
	st := p.strategyFor(classify.Parse(meta.Category))

	ok, reason := st.ShouldSendBody(meta, model)
	if !ok {
		return &Content{Kind: MetadataOnly, Note: reason}
	}
	c, err := st.FetchBody(meta, st.BodyMode(meta))
	if err != nil {
		return &Content{Kind: MetadataOnly, Note: "reading file: " + err.Error()}
	}
	return c
}

func (p *Provider) strategyFor(cat classify.Category) Strategy {
	switch cat {
	case classify.Image:
		return mediaStrategy{cat: cat, maxBytes: p.limits.MaxImageBytes}
	case classify.PDF:
		return mediaStrategy{cat: cat, maxBytes: p.limits.MaxPDFBytes}
	case classify.Audio:
		return mediaStrategy{cat: cat, maxBytes: p.limits.MaxAudioBytes}
	case classify.Video:
		return mediaStrategy{cat: cat, maxBytes: p.limits.MaxVideoBytes}
	case classify.Office, classify.Archive, classify.Folder:
		return noBodyStrategy{cat: cat}
	default:
		return textStrategy{limits: p.limits, cat: cat}
	}
}

// textStrategy covers text, code and data files.
type textStrategy struct {
	limits Limits
	cat    classify.Category
}

func (s textStrategy) ShouldSendBody(meta *metadata.FileMetadata, _ capability.Model) (bool, string) {
	if meta.SizeBytes > s.limits.MaxPartialTextBytes {
		return false, fmt.Sprintf("file is %d bytes, over the %d byte excerpt limit", meta.SizeBytes, s.limits.MaxPartialTextBytes)
	}
	return true, ""
}

func (s textStrategy) BodyMode(meta *metadata.FileMetadata) Mode {
	if meta.SizeBytes <= s.limits.MaxFullTextBytes {
		return ModeFull
	}
	return ModePartial
}

func (s textStrategy) FetchBody(meta *metadata.FileMetadata, mode Mode) (*Content, error) {
	data, err := os.ReadFile(meta.Path)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return &Content{Kind: MetadataOnly, Note: "file contains binary data"}, nil
	}

	c := &Content{}
	text := string(data)
	if mode == ModeFull {
		c.Kind = FullText
		c.Text = text
	} else {
		c.Kind = PartialText
		c.Text = headTail(text, s.limits.HeadLines, s.limits.TailLines)
	}
	s.addCSVHeader(c, meta, text)
	return c, nil
}

// addCSVHeader keeps the column row of tabular files as its own section so
// it survives truncation.
func (s textStrategy) addCSVHeader(c *Content, meta *metadata.FileMetadata, text string) {
	if s.cat != classify.Data {
		return
	}
	if meta.Extension != ".csv" && meta.Extension != ".tsv" {
		return
	}
	header, _, _ := strings.Cut(text, "\n")
	c.CSVHeader = strings.TrimRight(header, "\r")
}

// headTail keeps the first head and last tail lines with an omission marker
// between. Files short enough that the two ranges meet are returned whole.
func headTail(text string, head, tail int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= head+tail {
		return text
	}
	omitted := len(lines) - head - tail
	var b strings.Builder
	b.WriteString(strings.Join(lines[:head], "\n"))
	fmt.Fprintf(&b, "\n[... %d lines omitted ...]\n", omitted)
	b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	b.WriteString("\n")
	return b.String()
}

// mediaStrategy covers the attachable binary kinds.
type mediaStrategy struct {
	cat      classify.Category
	maxBytes int64
}

func (s mediaStrategy) ShouldSendBody(meta *metadata.FileMetadata, model capability.Model) (bool, string) {
	if !model.Supports(s.cat) {
		return false, fmt.Sprintf("model %s cannot take %s input", model.ID, s.cat)
	}
	if meta.SizeBytes > s.maxBytes {
		return false, fmt.Sprintf("file is %d bytes, over the %d byte %s limit", meta.SizeBytes, s.maxBytes, s.cat)
	}
	return true, ""
}

func (s mediaStrategy) BodyMode(*metadata.FileMetadata) Mode { return ModeFull }

func (s mediaStrategy) FetchBody(meta *metadata.FileMetadata, _ Mode) (*Content, error) {
	data, err := os.ReadFile(meta.Path)
	if err != nil {
		return nil, err
	}
	return &Content{Kind: Binary, MimeType: meta.MimeType, Data: data}, nil
}

// noBodyStrategy covers categories whose contents are described by metadata
// alone.
type noBodyStrategy struct {
	cat classify.Category
}

func (s noBodyStrategy) ShouldSendBody(*metadata.FileMetadata, capability.Model) (bool, string) {
	return false, "contents are described by metadata for " + s.cat.String()
}

func (s noBodyStrategy) BodyMode(*metadata.FileMetadata) Mode { return ModeFull }

func (s noBodyStrategy) FetchBody(*metadata.FileMetadata, Mode) (*Content, error) {
	return &Content{Kind: MetadataOnly}, nil
}

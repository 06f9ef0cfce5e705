package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/smartfolder/smartfolder/internal/content"
	"github.com/smartfolder/smartfolder/internal/metadata"
)

func TestBuildSystem(t *testing.T) {
	got := BuildSystem("/watch/inbox", "Sort PDFs into invoices/ by month.")

	if !strings.Contains(got, `"/watch/inbox"`) {
		t.Error("folder path missing")
	}
	if !strings.Contains(got, "Sort PDFs into invoices/ by month.") {
		t.Error("folder instructions missing")
	}
	for _, rule := range []string{
		"do not rename it",
		"use rename_file, never write_file",
		"the new name that tool reported",
		"Act only through the provided tools",
		"short plain-text summary",
	} {
		if !strings.Contains(got, rule) {
			t.Errorf("operating rule missing: %q", rule)
		}
	}
}

func TestBuildUser_FullText(t *testing.T) {
	meta := &metadata.FileMetadata{
		Name: "note.txt", Path: "/w/note.txt", Category: "text",
		Extension: ".txt", SizeBytes: 5, ModTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	c := &content.Content{Kind: content.FullText, Text: "hello"}

	parts, err := BuildUser(meta, c, []string{"read_file", "rename_file"})
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1", len(parts))
	}
	body := parts[0].Text
	for _, want := range []string{
		"# New file: note.txt",
		"- Category: text",
		"- Size: 5 bytes",
		"hello",
		"## Available tools",
		"- read_file",
		"- rename_file",
		`keep the original extension ".txt"`,
		`The exact original filename is "note.txt"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestBuildUser_SectionHeadings(t *testing.T) {
	meta := &metadata.FileMetadata{
		Name: "p.jpg", Category: "image", Extension: ".jpg",
		Image: &metadata.ImageMeta{Width: 640, Height: 480, Format: "jpeg"},
	}
	c := &content.Content{Kind: content.MetadataOnly}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	body := parts[0].Text
	if !strings.Contains(body, "### Image details") {
		t.Error("image section heading missing")
	}
	if !strings.Contains(body, `"width": 640`) {
		t.Error("image section JSON missing")
	}
	if strings.Contains(body, "### PDF details") {
		t.Error("absent sections should not render")
	}
}

func TestBuildUser_ContentWithBackticksStaysFenced(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "snip.md", Category: "text"}
	c := &content.Content{Kind: content.FullText, Text: "use ```go\ncode\n``` blocks"}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if !strings.Contains(parts[0].Text, "````\n") {
		t.Error("fence should grow past embedded backticks")
	}
}

func TestBuildUser_CSVHeader(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "d.csv", Category: "data", Extension: ".csv"}
	c := &content.Content{Kind: content.PartialText, Text: "1,2\n", CSVHeader: "a,b"}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if !strings.Contains(parts[0].Text, "CSV header: `a,b`") {
		t.Error("CSV header missing")
	}
	if !strings.Contains(parts[0].Text, "## Content (excerpt)") {
		t.Error("excerpt heading missing")
	}
}

func TestBuildUser_ImageBinaryPart(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "p.png", Category: "image", Extension: ".png"}
	c := &content.Content{Kind: content.Binary, MimeType: "image/png", Data: []byte{1, 2, 3}}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2", len(parts))
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL == nil {
		t.Errorf("second part should be an image, got %+v", parts[1])
	}
}

func TestBuildUser_PDFBinaryUsesFilePart(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "doc.pdf", Category: "pdf", Extension: ".pdf"}
	c := &content.Content{Kind: content.Binary, MimeType: "application/pdf", Data: []byte("%PDF")}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2", len(parts))
	}
	if parts[1].Type != "file" || parts[1].File == nil || parts[1].File.Filename != "doc.pdf" {
		t.Errorf("second part should be a file, got %+v", parts[1])
	}
}

func TestBuildUser_MetadataOnlyNote(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "x.zip", Category: "archive", Extension: ".zip"}
	c := &content.Content{Kind: content.MetadataOnly, Note: "contents are described by metadata for archive"}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if !strings.Contains(parts[0].Text, "Not included: contents are described by metadata for archive.") {
		t.Errorf("note missing: %s", parts[0].Text)
	}
}

func TestBuildUser_NoExtensionSkipsExtensionRule(t *testing.T) {
	meta := &metadata.FileMetadata{Name: "drop", Category: "folder"}
	c := &content.Content{Kind: content.MetadataOnly}

	parts, err := BuildUser(meta, c, nil)
	if err != nil {
		t.Fatalf("BuildUser: %v", err)
	}
	if strings.Contains(parts[0].Text, "original extension") {
		t.Error("extension rule should be skipped when there is none")
	}
	if !strings.Contains(parts[0].Text, `The exact original filename is "drop"`) {
		t.Error("filename rule missing")
	}
}

package classify

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		mime string
		want Category
	}{
		{"markdown", ".md", "", TextDocument},
		{"go source", ".go", "", Code},
		{"typescript beats transport stream", ".ts", "", Code},
		{"csv", ".csv", "", Data},
		{"jpeg by ext", ".jpg", "", Image},
		{"pdf", ".pdf", "", PDF},
		{"flac", ".flac", "", Audio},
		{"mkv", ".mkv", "", Video},
		{"docx", ".docx", "", Office},
		{"zip", ".zip", "", Archive},
		{"tarball final ext", ".gz", "", Archive},
		{"uppercase ext", ".PNG", "", Image},
		{"unknown falls back to text", ".xyz", "", TextDocument},
		{"no ext falls back to text", "", "", TextDocument},
		{"mime image wins over unknown ext", ".bin", "image/heic", Image},
		{"mime video wins", ".bin", "video/x-matroska", Video},
		{"mime audio wins", ".bin", "audio/ogg", Audio},
		{"mime text on unknown ext", ".bin", "text/plain; charset=utf-8", TextDocument},
		{"csv keeps data despite sniffed text mime", ".csv", "text/csv", Data},
		{"html keeps code despite sniffed text mime", ".html", "text/html; charset=utf-8", Code},
		{"mime application does not short-circuit", ".zip", "application/zip", Archive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.ext, tt.mime); got != tt.want {
				t.Errorf("Detect(%q, %q) = %v, want %v", tt.ext, tt.mime, got, tt.want)
			}
		})
	}
}

func TestDetectName(t *testing.T) {
	tests := []struct {
		name string
		want Category
	}{
		{"notes.md", TextDocument},
		{"backup.tar.gz", Archive},
		{"photo.HEIC", Image},
		{"report", TextDocument},
	}
	for _, tt := range tests {
		if got := DetectName(tt.name); got != tt.want {
			t.Errorf("DetectName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBinary(t *testing.T) {
	binary := []Category{Image, PDF, Audio, Video, Office, Archive}
	for _, c := range binary {
		if !c.Binary() {
			t.Errorf("%v.Binary() = false, want true", c)
		}
	}
	textual := []Category{TextDocument, Code, Data, Folder}
	for _, c := range textual {
		if c.Binary() {
			t.Errorf("%v.Binary() = true, want false", c)
		}
	}
}

func TestString(t *testing.T) {
	if got := PDF.String(); got != "pdf" {
		t.Errorf("PDF.String() = %q, want %q", got, "pdf")
	}
	if got := Category(99).String(); got != "text" {
		t.Errorf("Category(99).String() = %q, want %q", got, "text")
	}
}

func TestParseRoundTrip(t *testing.T) {
	for c := TextDocument; c <= Folder; c++ {
		if got := Parse(c.String()); got != c {
			t.Errorf("Parse(%q) = %v, want %v", c.String(), got, c)
		}
	}
	if got := Parse("nonsense"); got != TextDocument {
		t.Errorf("Parse(nonsense) = %v, want TextDocument", got)
	}
}

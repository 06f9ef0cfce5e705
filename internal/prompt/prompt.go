// Package prompt renders the system and user messages for one job: the
// folder's instructions wrapped in fixed operating rules, and the file's
// metadata plus prepared content.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smartfolder/smartfolder/internal/content"
	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/metadata"
)

// BuildSystem wraps the folder's instructions with the operating rules every
// job runs under. The rules stay fixed regardless of what the instructions
// say; they are what keeps the agent honest about file names.
func BuildSystem(folder, instructions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the automation agent for the folder %q.\n", folder)
	b.WriteString("A new file has arrived in this folder. Handle it according to the folder instructions below.\n")
	b.WriteString("\nFolder instructions:\n")
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\nOperating rules, regardless of the instructions above:\n")
	b.WriteString("1. Never guess information you do not have. If you are unsure what a file contains or what it should be called, do not rename it.\n")
	b.WriteString("2. write_file is only for creating brand-new files the instructions ask for. To change a file's name, use rename_file, never write_file.\n")
	b.WriteString("3. After a tool call succeeds, every later call must refer to the file by the new name that tool reported.\n")
	b.WriteString("4. Act only through the provided tools, inside the watched folder. Relative paths resolve against it; paths outside it are rejected.\n")
	b.WriteString("5. When the work is done, or nothing needs doing, reply with a short plain-text summary instead of calling more tools.\n")
	return b.String()
}

// sectionOrder fixes how the optional metadata sections are titled and
// rendered. Keys match the FileMetadata JSON field names.
var sectionTitles = []struct {
	key   string
	title string
}{
	{"image", "Image details"},
	{"pdf", "PDF details"},
	{"audio", "Audio details"},
	{"video", "Video details"},
	{"archive", "Archive details"},
	{"folder", "Folder details"},
}

// BuildUser renders the file for the model: the metadata header, any
// prepared content, the tools available for this job, and the handling rules
// that pin down the original filename. Binary content rides along as an
// image or file part after the text.
func BuildUser(meta *metadata.FileMetadata, c *content.Content, toolNames []string) ([]llm.Part, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# New file: %s\n\n", meta.Name)

	b.WriteString("## File\n\n")
	fmt.Fprintf(&b, "- Name: %s\n", meta.Name)
	fmt.Fprintf(&b, "- Path: %s\n", meta.Path)
	fmt.Fprintf(&b, "- Size: %d bytes\n", meta.SizeBytes)
	if meta.Extension != "" {
		fmt.Fprintf(&b, "- Extension: %s\n", meta.Extension)
	}
	if meta.MimeType != "" {
		fmt.Fprintf(&b, "- MIME type: %s\n", meta.MimeType)
	}
	fmt.Fprintf(&b, "- Category: %s\n", meta.Category)
	fmt.Fprintf(&b, "- Modified: %s\n", meta.ModTime.Format("2006-01-02T15:04:05Z07:00"))
	if meta.SHA256 != "" {
		fmt.Fprintf(&b, "- SHA-256: %s\n", meta.SHA256)
	}

	if err := writeSections(&b, meta); err != nil {
		return nil, err
	}

	switch c.Kind {
	case content.FullText:
		b.WriteString("\n## Content\n\n")
		writeContentBlock(&b, c)
	case content.PartialText:
		b.WriteString("\n## Content (excerpt)\n\n")
		writeContentBlock(&b, c)
	case content.Binary:
		b.WriteString("\n## Content\n\nThe file is attached to this message.\n")
	case content.MetadataOnly:
		b.WriteString("\n## Content\n\nNot included")
		if c.Note != "" {
			fmt.Fprintf(&b, ": %s", c.Note)
		}
		b.WriteString(".\n")
	}

	if len(toolNames) > 0 {
		b.WriteString("\n## Available tools\n\n")
		for _, name := range toolNames {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	b.WriteString("\n## Handling rules\n\n")
	if meta.Extension != "" {
		fmt.Fprintf(&b, "- Any new name you give this file must keep the original extension %q.\n", meta.Extension)
	}
	fmt.Fprintf(&b, "- The exact original filename is %q. Refer to the file by this name until a tool reports a new one.\n", meta.Name)

	parts := []llm.Part{llm.TextPart(b.String())}
	if c.Kind == content.Binary {
		if strings.HasPrefix(c.MimeType, "image/") {
			parts = append(parts, llm.ImagePart(c.MimeType, c.Data))
		} else {
			parts = append(parts, llm.FilePart(meta.Name, c.MimeType, c.Data))
		}
	}
	return parts, nil
}

// writeSections renders each optional metadata section under its own
// heading as a JSON block.
func writeSections(b *strings.Builder, meta *metadata.FileMetadata) error {
	sections := map[string]any{}
	if meta.Image != nil {
		sections["image"] = meta.Image
	}
	if meta.PDF != nil {
		sections["pdf"] = meta.PDF
	}
	if meta.Audio != nil {
		sections["audio"] = meta.Audio
	}
	if meta.Video != nil {
		sections["video"] = meta.Video
	}
	if meta.Archive != nil {
		sections["archive"] = meta.Archive
	}
	if meta.Folder != nil {
		sections["folder"] = meta.Folder
	}

	for _, s := range sectionTitles {
		v, ok := sections[s.key]
		if !ok {
			continue
		}
		enc, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s metadata: %w", s.key, err)
		}
		fmt.Fprintf(b, "\n### %s\n\n```json\n%s\n```\n", s.title, enc)
	}
	return nil
}

func writeContentBlock(b *strings.Builder, c *content.Content) {
	if c.CSVHeader != "" {
		fmt.Fprintf(b, "CSV header: `%s`\n\n", c.CSVHeader)
	}
	fence := "```"
	// Grow the fence past any backtick run in the content so it cannot
	// break out of the block.
	for strings.Contains(c.Text, fence) {
		fence += "`"
	}
	b.WriteString(fence)
	b.WriteString("\n")
	b.WriteString(c.Text)
	if !strings.HasSuffix(c.Text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n")
}

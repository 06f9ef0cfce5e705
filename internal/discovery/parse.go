package discovery

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits on a smartfolder.md file. The whole file is the prompt, so these
// bound what ends up in every system message for the folder.
const (
	MaxFileBytes   = 1 << 20
	MaxPromptChars = 50_000

	// warnRunLength flags pasted garbage: no real instruction repeats one
	// character a thousand times.
	warnRunLength = 1000
)

// Rejection reasons for a config file. A rejected file attaches no folder.
var (
	ErrFileTooLarge  = errors.New("config file exceeds 1 MiB")
	ErrPromptTooLong = errors.New("prompt exceeds 50000 characters")
	ErrPromptEmpty   = errors.New("prompt is empty")
	ErrPromptHasNUL  = errors.New("prompt contains a NUL byte")
)

// ParsePromptFile reads a smartfolder.md file and returns its prompt. The
// whole file body is the prompt. Hard limits reject the file; suspicious but
// plausible content comes back as warnings alongside a valid prompt.
func ParsePromptFile(path string) (string, []string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxFileBytes {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParsePrompt(string(data))
}

// ParsePrompt validates a prompt string per the config-file contract.
func ParsePrompt(raw string) (string, []string, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return "", nil, ErrPromptHasNUL
	}
	prompt := strings.TrimSpace(raw)
	if prompt == "" {
		return "", nil, ErrPromptEmpty
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptChars {
		return "", nil, fmt.Errorf("%w: %d characters", ErrPromptTooLong, n)
	}
	return prompt, promptWarnings(prompt), nil
}

// promptWarnings flags content that parses but looks wrong: very long runs of
// one character, or control characters beyond ordinary whitespace.
func promptWarnings(prompt string) []string {
	var warnings []string

	var prev rune = -1
	run := 0
	flaggedRun := false
	controls := map[rune]bool{}
	for _, r := range prompt {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > warnRunLength && !flaggedRun {
			warnings = append(warnings, fmt.Sprintf("run of more than %d identical %q characters", warnRunLength, r))
			flaggedRun = true
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			controls[r] = true
		}
	}
	if len(controls) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d unusual control characters", len(controls)))
	}
	return warnings
}

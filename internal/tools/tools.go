// Package tools implements the sandboxed vocabulary the agent acts through:
// nine filesystem tools confined to one watched folder, with JSON-schema
// input contracts, dry-run short-circuiting, and self-change notifications
// for every mutation.
package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/smartfolder/smartfolder/internal/classify"
	"github.com/smartfolder/smartfolder/internal/llm"
	"github.com/smartfolder/smartfolder/internal/sandbox"
)

// Stable failure codes carried in error payloads.
const (
	CodePathEscape        = "PathEscape"
	CodeSizeExceeded      = "SizeExceeded"
	CodeNotRegular        = "NotRegular"
	CodeExistsAlready     = "ExistsAlready"
	CodeMissing           = "Missing"
	CodeExtensionMismatch = "ExtensionMismatch"
	CodeBinaryToolMisuse  = "BinaryToolMisuse"
	CodeInvalidArgs       = "InvalidArgs"
	CodeUnknownTool       = "UnknownTool"
	CodeCanceled          = "Canceled"
	CodeToolFailed        = "ToolFailed"
)

const (
	defaultHeadTailLines = 10
	maxHeadTailLines     = 1000
	maxGrepMatches       = 100
	tailWindowBytes      = 256 * 1024
)

// Fault is a failure the model can act on.
type Fault struct {
	Code    string
	Target  string
	Message string
}

func (f *Fault) Error() string { return f.Message }

// Result is the outcome of one tool invocation. Payload is the JSON object
// handed back to the model, for success and failure alike.
type Result struct {
	Tool    string
	OK      bool
	Payload json.RawMessage
}

type definition struct {
	schema  Schema
	mutates bool
	run     func(ts *Toolset, raw json.RawMessage) (map[string]any, error)
}

// registry fixes the canonical tool order. Names are part of the model-facing
// contract and never change.
var registry = []definition{
	{
		schema: Schema{
			Name:        "read_file",
			Description: "Read a text file inside the folder. Returns its size in bytes and its UTF-8 contents.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
			},
		},
		run: (*Toolset).readFile,
	},
	{
		schema: Schema{
			Name:        "write_file",
			Description: "Create a brand-new text file. Fails if the file already exists; parent directories are created as needed.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
				{Name: "contents", Type: "string", Description: "Full contents of the new file.", Required: true},
			},
		},
		mutates: true,
		run:     (*Toolset).writeFile,
	},
	{
		schema: Schema{
			Name:        "rename_file",
			Description: "Rename a file. The new name must keep the original file extension.",
			Params: []Param{
				{Name: "from", Type: "string", Description: "Current file path relative to the folder.", Required: true, Path: true},
				{Name: "to", Type: "string", Description: "New file path relative to the folder.", Required: true, Path: true},
			},
		},
		mutates: true,
		run:     (*Toolset).renameFile,
	},
	{
		schema: Schema{
			Name:        "move_file",
			Description: "Move a file or directory to a new path inside the folder. Files must keep their extension.",
			Params: []Param{
				{Name: "from", Type: "string", Description: "Current path relative to the folder.", Required: true, Path: true},
				{Name: "to", Type: "string", Description: "Destination path relative to the folder.", Required: true, Path: true},
			},
		},
		mutates: true,
		run:     (*Toolset).moveFile,
	},
	{
		schema: Schema{
			Name:        "grep",
			Description: "Find lines containing a literal substring in a text file. Returns up to 100 matches with line numbers.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
				{Name: "pattern", Type: "string", Description: "Literal text to search for; not a regular expression.", Required: true},
				{Name: "caseInsensitive", Type: "boolean", Description: "Ignore letter case when matching.", Required: false},
			},
		},
		run: (*Toolset).grep,
	},
	{
		schema: Schema{
			Name:        "sed",
			Description: "Replace every occurrence of a literal string in a text file. The file is only rewritten when something changed.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
				{Name: "find", Type: "string", Description: "Literal text to replace; not a regular expression.", Required: true},
				{Name: "replace", Type: "string", Description: "Replacement text.", Required: true},
				{Name: "caseInsensitive", Type: "boolean", Description: "Ignore letter case when matching.", Required: false},
			},
		},
		mutates: true,
		run:     (*Toolset).sed,
	},
	{
		schema: Schema{
			Name:        "head",
			Description: "Read the first lines of a text file.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
				{Name: "lines", Type: "integer", Description: "How many lines to read. Defaults to 10.", Required: false},
			},
		},
		run: (*Toolset).head,
	},
	{
		schema: Schema{
			Name:        "tail",
			Description: "Read the last lines of a text file.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "File path relative to the folder.", Required: true, Path: true},
				{Name: "lines", Type: "integer", Description: "How many lines to read. Defaults to 10.", Required: false},
			},
		},
		run: (*Toolset).tail,
	},
	{
		schema: Schema{
			Name:        "create_folder",
			Description: "Create a new directory inside the folder, including missing parents. Fails if it already exists.",
			Params: []Param{
				{Name: "path", Type: "string", Description: "Directory path relative to the folder.", Required: true, Path: true},
			},
		},
		mutates: true,
		run:     (*Toolset).createFolder,
	},
}

// AllNames returns every tool id in canonical order.
func AllNames() []string {
	names := make([]string, len(registry))
	for i, d := range registry {
		names[i] = d.schema.Name
	}
	return names
}

// binarySubset is the vocabulary for files whose bytes the text tools cannot
// usefully touch: organize and annotate, never read or edit.
var binarySubset = map[string]bool{
	"write_file":    true,
	"rename_file":   true,
	"move_file":     true,
	"create_folder": true,
}

// ForCategory returns the tool ids offered for a file category, in canonical
// order.
func ForCategory(cat classify.Category) []string {
	if !cat.Binary() && cat != classify.Folder {
		return AllNames()
	}
	var names []string
	for _, d := range registry {
		if binarySubset[d.schema.Name] {
			names = append(names, d.schema.Name)
		}
	}
	return names
}

// Config describes one folder's toolset.
type Config struct {
	Root     string   // watched folder; every path argument resolves against it
	Names    []string // allowed subset, nil for all nine
	DryRun   bool
	OnChange func(abs string) // called for every path a tool mutated
	Log      *slog.Logger
}

// Toolset executes tool calls for one folder.
type Toolset struct {
	root     string
	dryRun   bool
	onChange func(string)
	log      *slog.Logger
	active   []definition
}

// New builds the toolset for a folder. Unknown names in cfg.Names are
// rejected so a config typo cannot silently shrink the vocabulary.
func New(cfg Config) (*Toolset, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving folder root: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	active := registry
	if cfg.Names != nil {
		byName := make(map[string]definition, len(registry))
		for _, d := range registry {
			byName[d.schema.Name] = d
		}
		picked := make(map[string]bool, len(cfg.Names))
		for _, name := range cfg.Names {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("unknown tool %q", name)
			}
			picked[name] = true
		}
		active = nil
		for _, d := range registry {
			if picked[d.schema.Name] {
				active = append(active, d)
			}
		}
	}

	return &Toolset{
		root:     root,
		dryRun:   cfg.DryRun,
		onChange: cfg.OnChange,
		log:      log,
		active:   active,
	}, nil
}

// Root returns the folder the toolset is confined to.
func (ts *Toolset) Root() string { return ts.root }

// Names returns the active tool ids in canonical order.
func (ts *Toolset) Names() []string {
	names := make([]string, len(ts.active))
	for i, d := range ts.active {
		names[i] = d.schema.Name
	}
	return names
}

// ModelDefs returns the model-facing definitions of the active tools.
func (ts *Toolset) ModelDefs() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(ts.active))
	for i, d := range ts.active {
		defs[i] = ModelDef(d.schema)
	}
	return defs
}

// Execute runs one tool call and returns its result. Failures never escape
// as errors; they come back as JSON payloads the model can read and react
// to. Every invocation is logged with its duration and outcome.
func (ts *Toolset) Execute(ctx context.Context, name string, raw json.RawMessage) Result {
	start := time.Now()

	payload, err := ts.dispatch(ctx, name, raw)
	if err != nil {
		payload = faultPayload(name, err)
	}
	payload["tool"] = name

	enc, mErr := json.Marshal(payload)
	if mErr != nil {
		enc = []byte(fmt.Sprintf(`{"tool":%q,"error":"encoding result: %s","code":%q}`, name, mErr, CodeToolFailed))
		err = mErr
	}

	ts.log.Info("tool invoked",
		"tool", name,
		"args", sanitizeArgs(raw),
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
		"output", clip(string(enc), 300),
	)
	return Result{Tool: name, OK: err == nil, Payload: enc}
}

func (ts *Toolset) dispatch(ctx context.Context, name string, raw json.RawMessage) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Fault{Code: CodeCanceled, Message: "job canceled"}
	}
	var def *definition
	for i := range ts.active {
		if ts.active[i].schema.Name == name {
			def = &ts.active[i]
			break
		}
	}
	if def == nil {
		return nil, &Fault{Code: CodeUnknownTool, Message: fmt.Sprintf("no tool named %q", name)}
	}
	if err := ValidateArgs(def.schema, raw); err != nil {
		return nil, &Fault{Code: CodeInvalidArgs, Message: err.Error()}
	}
	if def.mutates && ts.dryRun {
		// Contain the paths first: the preview must fail exactly where the
		// real run would.
		if err := ts.containPathArgs(def.schema, raw); err != nil {
			return nil, err
		}
		return map[string]any{"skipped": true, "reason": "dry_run"}, nil
	}
	return def.run(ts, raw)
}

// containPathArgs resolves every path-typed argument against the folder root,
// failing on the first escape.
func (ts *Toolset) containPathArgs(s Schema, raw json.RawMessage) error {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return err
	}
	for _, p := range s.Params {
		if !p.Path {
			continue
		}
		v, ok := args[p.Name].(string)
		if !ok {
			continue
		}
		if _, err := ts.contain(v); err != nil {
			return err
		}
	}
	return nil
}

// faultPayload renders an error as the JSON object returned to the model.
func faultPayload(tool string, err error) map[string]any {
	p := map[string]any{
		"error": err.Error(),
		"code":  codeFor(err),
	}
	var f *Fault
	if errors.As(err, &f) && f.Target != "" {
		p["target"] = f.Target
	}
	return p
}

func codeFor(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	switch {
	case errors.Is(err, sandbox.ErrPathEscape):
		return CodePathEscape
	case errors.Is(err, sandbox.ErrSizeExceeded):
		return CodeSizeExceeded
	case errors.Is(err, sandbox.ErrNotRegular):
		return CodeNotRegular
	case errors.Is(err, sandbox.ErrExists):
		return CodeExistsAlready
	case errors.Is(err, sandbox.ErrMissing):
		return CodeMissing
	default:
		return CodeToolFailed
	}
}

// contain resolves p inside the folder root.
func (ts *Toolset) contain(p string) (string, error) {
	abs, err := sandbox.Contain(ts.root, p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func (ts *Toolset) notify(abs string) {
	if ts.onChange != nil {
		ts.onChange(abs)
	}
}

// refuseBinary guards the text tools against binary files, by extension.
func refuseBinary(tool, abs string) error {
	ext := strings.ToLower(filepath.Ext(abs))
	if ext == "" {
		return nil
	}
	if classify.Detect(ext, "").Binary() {
		return &Fault{
			Code:    CodeBinaryToolMisuse,
			Target:  abs,
			Message: fmt.Sprintf("%s works on text files; %q is a binary %s file", tool, filepath.Base(abs), ext),
		}
	}
	return nil
}

func (ts *Toolset) readFile(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("read_file", abs); err != nil {
		return nil, err
	}
	data, err := sandbox.ReadCapped(abs, sandbox.MaxReadBytes)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"target":  abs,
		"bytes":   len(data),
		"preview": string(data),
	}, nil
}

func (ts *Toolset) writeFile(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path     string `json:"path"`
		Contents string `json:"contents"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("write_file", abs); err != nil {
		return nil, err
	}
	if err := sandbox.AssertNotExists(abs); err != nil {
		return nil, err
	}
	if err := sandbox.EnsureParentDir(abs); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, []byte(a.Contents), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", abs, err)
	}
	ts.notify(abs)
	return map[string]any{
		"target":  abs,
		"bytes":   len(a.Contents),
		"message": fmt.Sprintf("created %s", filepath.Base(abs)),
	}, nil
}

func (ts *Toolset) renameFile(raw json.RawMessage) (map[string]any, error) {
	return ts.relocate(raw, false)
}

func (ts *Toolset) moveFile(raw json.RawMessage) (map[string]any, error) {
	return ts.relocate(raw, true)
}

// relocate implements rename_file and move_file. The two differ in one rule:
// move_file skips the extension check when the source is a directory.
func (ts *Toolset) relocate(raw json.RawMessage, dirsSkipExtRule bool) (map[string]any, error) {
	var a struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	fromAbs, err := ts.contain(a.From)
	if err != nil {
		return nil, err
	}
	toAbs, err := ts.contain(a.To)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(fromAbs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sandbox.ErrMissing, fromAbs)
		}
		return nil, fmt.Errorf("stat %s: %w", fromAbs, err)
	}

	if !(dirsSkipExtRule && info.IsDir()) {
		if err := checkExtensionPreserved(fromAbs, toAbs); err != nil {
			return nil, err
		}
	}
	if err := sandbox.AssertNotExists(toAbs); err != nil {
		return nil, err
	}
	if err := sandbox.EnsureParentDir(toAbs); err != nil {
		return nil, err
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		return nil, fmt.Errorf("renaming %s: %w", fromAbs, err)
	}
	ts.notify(fromAbs)
	ts.notify(toAbs)

	oldName := filepath.Base(fromAbs)
	newName := filepath.Base(toAbs)
	return map[string]any{
		"target":  fromAbs,
		"renamed": true,
		"oldName": oldName,
		"newName": newName,
		"message": fmt.Sprintf("renamed %q to %q; refer to the file as %q from now on", oldName, newName, newName),
	}, nil
}

// checkExtensionPreserved enforces that a new name keeps the original
// extension, suggesting the corrected name when it does not.
func checkExtensionPreserved(fromAbs, toAbs string) error {
	ext := strings.ToLower(filepath.Ext(fromAbs))
	if ext == "" {
		return nil
	}
	toName := filepath.Base(toAbs)
	if strings.HasSuffix(strings.ToLower(toName), ext) {
		return nil
	}
	suggested := strings.TrimSuffix(toName, filepath.Ext(toName)) + ext
	return &Fault{
		Code:    CodeExtensionMismatch,
		Target:  toAbs,
		Message: fmt.Sprintf("new name %q must keep the original extension %q; did you mean %q?", toName, ext, suggested),
	}
}

func (ts *Toolset) grep(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path            string `json:"path"`
		Pattern         string `json:"pattern"`
		CaseInsensitive bool   `json:"caseInsensitive"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	if a.Pattern == "" {
		return nil, &Fault{Code: CodeInvalidArgs, Message: "pattern must not be empty"}
	}
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("grep", abs); err != nil {
		return nil, err
	}
	data, err := sandbox.ReadCapped(abs, sandbox.MaxReadBytes)
	if err != nil {
		return nil, err
	}

	pattern := a.Pattern
	if a.CaseInsensitive {
		pattern = strings.ToLower(pattern)
	}

	var matches []map[string]any
	truncated := false
	for i, line := range strings.Split(string(data), "\n") {
		hay := line
		if a.CaseInsensitive {
			hay = strings.ToLower(line)
		}
		if !strings.Contains(hay, pattern) {
			continue
		}
		if len(matches) == maxGrepMatches {
			truncated = true
			break
		}
		matches = append(matches, map[string]any{"line": i + 1, "content": line})
	}

	return map[string]any{
		"target":    abs,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}, nil
}

func (ts *Toolset) sed(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path            string `json:"path"`
		Find            string `json:"find"`
		Replace         string `json:"replace"`
		CaseInsensitive bool   `json:"caseInsensitive"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	if a.Find == "" {
		return nil, &Fault{Code: CodeInvalidArgs, Message: "find must not be empty"}
	}
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("sed", abs); err != nil {
		return nil, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sandbox.ErrMissing, abs)
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	data, err := sandbox.ReadCapped(abs, sandbox.MaxReadBytes)
	if err != nil {
		return nil, err
	}

	// The needle is always literal; escaping keeps the model from smuggling
	// regex syntax into the match.
	expr := regexp.QuoteMeta(a.Find)
	if a.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &Fault{Code: CodeInvalidArgs, Message: fmt.Sprintf("compiling find pattern: %v", err)}
	}

	count := len(re.FindAllIndex(data, -1))
	if count == 0 {
		return map[string]any{
			"target":       abs,
			"changed":      false,
			"replacements": 0,
		}, nil
	}

	out := re.ReplaceAllLiteral(data, []byte(a.Replace))
	if err := os.WriteFile(abs, out, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", abs, err)
	}
	ts.notify(abs)
	return map[string]any{
		"target":       abs,
		"changed":      true,
		"replacements": count,
	}, nil
}

func (ts *Toolset) head(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path  string `json:"path"`
		Lines int    `json:"lines"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	n := clampLines(a.Lines)
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("head", abs); err != nil {
		return nil, err
	}

	lines, err := readHead(abs, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"target": abs,
		"lines":  lines,
		"count":  len(lines),
	}, nil
}

func (ts *Toolset) tail(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path  string `json:"path"`
		Lines int    `json:"lines"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	n := clampLines(a.Lines)
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := refuseBinary("tail", abs); err != nil {
		return nil, err
	}

	lines, err := readTail(abs, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"target": abs,
		"lines":  lines,
		"count":  len(lines),
	}, nil
}

func (ts *Toolset) createFolder(raw json.RawMessage) (map[string]any, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	abs, err := ts.contain(a.Path)
	if err != nil {
		return nil, err
	}
	if err := sandbox.AssertNotExists(abs); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	ts.notify(abs)
	return map[string]any{
		"target":  abs,
		"created": true,
	}, nil
}

// clampLines applies the default and the upper bound for head and tail.
func clampLines(n int) int {
	if n <= 0 {
		return defaultHeadTailLines
	}
	if n > maxHeadTailLines {
		return maxHeadTailLines
	}
	return n
}

// readHead streams the first n lines without loading the whole file.
func readHead(abs string, n int) ([]string, error) {
	f, err := openRegular(abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := make([]string, 0, n)
	for len(lines) < n && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	return lines, nil
}

// readTail reads the last n lines from a bounded window at the end of the
// file, so tailing a large log stays cheap.
func readTail(abs string, n int) ([]string, error) {
	f, err := openRegular(abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	var off int64
	if info.Size() > tailWindowBytes {
		off = info.Size() - tailWindowBytes
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking %s: %w", abs, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if off > 0 && len(lines) > 0 {
		// The window start almost certainly landed mid-line.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func openRegular(abs string) (*os.File, error) {
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sandbox.ErrMissing, abs)
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", sandbox.ErrNotRegular, abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", abs, err)
	}
	return f, nil
}

// sanitizeArgs renders tool arguments for logging, clipping long values so a
// write_file body does not flood the log.
func sanitizeArgs(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return clip(string(raw), 200)
	}
	for k, v := range m {
		if s, ok := v.(string); ok && len(s) > 160 {
			m[k] = fmt.Sprintf("%s... (%d bytes)", clip(s, 160), len(s))
		}
	}
	enc, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(enc)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

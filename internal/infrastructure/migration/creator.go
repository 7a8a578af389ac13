package migration

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode"
)

// VersionLayout formats migration versions; lexical order is time order
const VersionLayout = "20060102150405"

var scaffoldTmpl = template.Must(template.New("migration").Parse(
	`-- {{.Name}} ({{.Direction}})
-- Created: {{.Created}}
{{- if .Description}}
-- {{.Description}}
{{- end}}

`))

// Pair is a scaffolded up/down migration
type Pair struct {
	Version  string
	Slug     string
	UpPath   string
	DownPath string
}

// Entry is one migration found in a source
type Entry struct {
	Version uint
	Name    string
	HasDown bool
}

// Scaffold writes an empty up/down pair for name into dir, versioned by now.
// Existing files are never overwritten.
func Scaffold(dir, name, description string, now time.Time) (*Pair, error) {
	slug := Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	version := now.UTC().Format(VersionLayout)
	base := filepath.Join(dir, version+"_"+slug)
	p := &Pair{Version: version, Slug: slug, UpPath: base + ".up.sql", DownPath: base + ".down.sql"}

	data := map[string]string{
		"Name":        slug,
		"Created":     now.UTC().Format(time.RFC3339),
		"Description": strings.TrimSpace(description),
	}
	for _, f := range []struct{ path, direction string }{{p.UpPath, "up"}, {p.DownPath, "down"}} {
		data["Direction"] = f.direction
		var buf bytes.Buffer
		if err := scaffoldTmpl.Execute(&buf, data); err != nil {
			return nil, err
		}
		if err := writeNew(f.path, buf.Bytes()); err != nil {
			_ = os.Remove(p.UpPath)
			return nil, err
		}
	}
	return p, nil
}

func writeNew(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	_, werr := f.Write(body)
	return errors.Join(werr, f.Close())
}

// Slugify lowercases name and collapses every run of other characters into
// one underscore
func Slugify(name string) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			gap = false
			continue
		}
		gap = true
	}
	return b.String()
}

// List returns the migrations in fsys in version order
func List(fsys fs.FS) ([]Entry, error) {
	src, err := OpenSource(fsys)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	all, err := versions(src)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(all))
	for _, v := range all {
		e := Entry{Version: v}
		if up, ident, err := src.ReadUp(v); err == nil {
			e.Name = ident
			_ = up.Close()
		}
		if down, ident, err := src.ReadDown(v); err == nil {
			e.HasDown = true
			if e.Name == "" {
				e.Name = ident
			}
			_ = down.Close()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

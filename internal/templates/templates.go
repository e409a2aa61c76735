// Package templates renders stub documents for each document kind.
//
// A stub is built from two parts: frontmatter assembled from typed Data
// fields, and a Markdown body rendered with text/template. Default bodies are
// embedded; a vault may override them with <templates_dir>/<kind>.md files.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"text/template"
	"time"

	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
)

//go:embed defaults/*.md.tmpl
var defaultFS embed.FS

// Kinds lists every kind that has a template.
var Kinds = []models.Kind{models.KindProject, models.KindDust, models.KindSource, models.KindDomain}

// Frontmatter keys owned by the renderer; overrides cannot replace them.
var reserved = map[string]struct{}{
	"type": {}, "created": {}, "domain": {}, "orbits": {}, "satellites": {},
}

// Data holds the substitution slots shared by all templates.
type Data struct {
	Title      string
	Date       string
	Category   models.Category
	Parent     string
	Path       string
	Orbits     []string
	Satellites []string
}

// Renderer renders stub documents.
type Renderer struct {
	bodies map[models.Kind]*template.Template
	extra  map[models.Kind]map[string]any
}

// NewRenderer parses the embedded default templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		bodies: make(map[models.Kind]*template.Template, len(Kinds)),
		extra:  make(map[models.Kind]map[string]any, len(Kinds)),
	}
	for _, k := range Kinds {
		raw, err := defaultFS.ReadFile("defaults/" + string(k) + ".md.tmpl")
		if err != nil {
			return nil, fmt.Errorf("templates: read default %s: %w", k, err)
		}
		t, err := template.New(string(k)).Option("missingkey=zero").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("templates: parse default %s: %w", k, err)
		}
		r.bodies[k] = t
	}
	return r, nil
}

// Override replaces the body template for kind with the body of raw and
// remembers any non-reserved frontmatter keys as extra defaults.
func (r *Renderer) Override(kind models.Kind, raw []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("templates: unknown kind %q", kind)
	}
	meta, body := frontmatter.Decode(raw)
	t, err := template.New(string(kind)).Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("templates: parse override %s: %w", kind, err)
	}
	extra := make(map[string]any)
	for k, v := range meta {
		if _, ok := reserved[k]; !ok {
			extra[k] = v
		}
	}
	r.bodies[kind] = t
	r.extra[kind] = extra
	return nil
}

// LoadDir applies every <dir>/<kind>.md override found in the vault and
// returns how many were loaded. A missing dir is not an error.
func (r *Renderer) LoadDir(store storage.Provider, dir string) (int, error) {
	if dir == "" || !store.Exists(dir) {
		return 0, nil
	}
	var errs []error
	n := 0
	for _, k := range Kinds {
		p := path.Join(dir, string(k)+models.DocExt)
		if !store.Exists(p) {
			continue
		}
		raw, err := store.Read(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Override(k, raw); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Render produces the complete document text for kind.
func (r *Renderer) Render(kind models.Kind, d Data) ([]byte, error) {
	t, ok := r.bodies[kind]
	if !ok {
		return nil, fmt.Errorf("templates: unknown kind %q", kind)
	}
	if d.Date == "" {
		d.Date = time.Now().Format("2006-01-02")
	}
	var body bytes.Buffer
	body.WriteString("\n")
	if err := t.Execute(&body, d); err != nil {
		return nil, fmt.Errorf("templates: render %s: %w", kind, err)
	}
	return frontmatter.Encode(r.metadata(kind, d), body.String())
}

func (r *Renderer) metadata(kind models.Kind, d Data) map[string]any {
	meta := make(map[string]any)
	for k, v := range r.extra[kind] {
		meta[k] = v
	}
	meta["type"] = string(kind)
	meta["created"] = d.Date
	if kind == models.KindDomain {
		return meta
	}

	domain := ""
	if d.Category.Number != "" {
		domain = d.Category.Folder()
	}
	meta["domain"] = domain
	meta["orbits"] = nonNil(d.Orbits)
	meta["satellites"] = nonNil(d.Satellites)
	if kind == models.KindSource {
		if _, ok := meta["source"]; !ok {
			meta["source"] = ""
		}
	}
	return meta
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

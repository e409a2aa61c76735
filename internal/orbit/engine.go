// Package orbit reconciles vault documents with the folder layout their
// frontmatter declares.
//
// A document names the groupings it belongs to in "orbits" and the members it
// owns in "satellites". Processing a document scaffolds every grouping it
// references, moves it into the selected grouping once it is old enough, and
// creates stubs for members that do not exist yet. Every step is idempotent,
// so re-processing a settled document changes nothing.
package orbit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
	"github.com/starford/orbit/internal/taxonomy"
	"github.com/starford/orbit/internal/templates"
)

// Defaults for the reconciliation timing.
const (
	DefaultMinAge   = time.Minute
	DefaultDebounce = time.Second
)

// EventType names a change the engine made to the vault.
type EventType string

const (
	EventProcessed  EventType = "document.processed"
	EventMoved      EventType = "document.moved"
	EventCreated    EventType = "document.created"
	EventScaffolded EventType = "grouping.scaffolded"
	EventPromoted   EventType = "grouping.promoted"
)

// Event describes a single vault change.
type Event struct {
	Type EventType `json:"type"`
	Path string    `json:"path"`
	From string    `json:"from,omitempty"`
}

// Result summarises one Process call.
type Result struct {
	Path       string   `json:"path"`
	From       string   `json:"from,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
	Moved      bool     `json:"moved"`
	Deferred   bool     `json:"deferred,omitempty"`
	Scaffolded []string `json:"scaffolded,omitempty"`
	Created    []string `json:"created,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMinAge sets how long a document must have been observed before it is
// moved.
func WithMinAge(d time.Duration) Option {
	return func(e *Engine) { e.minAge = d }
}

// WithStrict makes unresolvable category references an error instead of a
// fallback to the first category.
func WithStrict(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// WithTemplatesDir sets the vault folder holding template overrides. Files
// inside it are never processed.
func WithTemplatesDir(dir string) Option {
	return func(e *Engine) { e.templatesDir = path.Clean(dir) }
}

// WithCallback registers fn to receive every change event.
func WithCallback(fn func(Event)) Option {
	return func(e *Engine) { e.callbacks = append(e.callbacks, fn) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine owns the reconciliation state for one vault. Its exported mutating
// methods are serialised by a single mutex.
type Engine struct {
	mu sync.Mutex

	store    storage.Provider
	registry *taxonomy.Registry
	renderer *templates.Renderer
	tracker  *Tracker

	now          func() time.Time
	minAge       time.Duration
	strict       bool
	templatesDir string
	callbacks    []func(Event)
	logger       *slog.Logger
}

// New creates an engine.
func New(store storage.Provider, registry *taxonomy.Registry, renderer *templates.Renderer, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		renderer: renderer,
		tracker:  NewTracker(),
		now:      time.Now,
		minAge:   DefaultMinAge,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry returns the taxonomy registry.
func (e *Engine) Registry() *taxonomy.Registry { return e.registry }

// Tracker returns the creation-time tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Process reconciles the document at rel.
func (e *Engine) Process(ctx context.Context, rel string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(ctx, rel)
}

func (e *Engine) process(ctx context.Context, rel string) (Result, error) {
	rel = path.Clean(rel)
	res := Result{Path: rel}
	if !e.isDocument(rel) {
		res.Skipped = true
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	now := e.now()
	e.tracker.Observe(rel, now)

	data, err := e.store.Read(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.tracker.Forget(rel)
			return res, fmt.Errorf("orbit: process %s: %w", rel, apperr.ErrNotFound)
		}
		return res, fmt.Errorf("orbit: process %s: %w", rel, err)
	}
	meta, body := frontmatter.Decode(data)
	if meta == nil {
		e.logger.Debug("orbit: no usable frontmatter", slog.String("path", rel))
		res.Skipped = true
		return res, nil
	}
	doc := documentFromMeta(rel, meta, body)
	res.Kind = string(doc.Kind)

	if doc.Domain != "" {
		c, ok := e.registry.Resolve(doc.Domain)
		switch {
		case ok:
			created, err := e.registry.EnsureScaffold(c)
			if err != nil {
				return res, err
			}
			if created {
				res.Scaffolded = append(res.Scaffolded, c.Folder())
			}
		case e.strict:
			return res, fmt.Errorf("orbit: domain %q of %s: %w", doc.Domain, rel, apperr.ErrUnresolved)
		default:
			e.logger.Warn("orbit: unknown domain", slog.String("path", rel), slog.String("domain", doc.Domain))
		}
	}

	orbits := make([]Orbit, 0, len(doc.Orbits))
	for _, token := range doc.Orbits {
		g, err := e.resolveGroup(token, doc.Domain, rel)
		if err != nil {
			return res, err
		}
		orbits = append(orbits, Orbit{Token: token, Grouping: g})
	}
	for _, o := range orbits {
		created, err := e.ensureGrouping(o.Grouping, rel)
		if err != nil {
			return res, err
		}
		if created {
			res.Scaffolded = append(res.Scaffolded, o.Grouping.Dir)
		}
	}

	if dest := e.destination(rel, doc, orbits); dest != rel {
		if age := e.tracker.Age(rel, now); age >= e.minAge {
			if final, moved := e.moveTo(rel, dest); moved {
				res.From, res.Path, res.Moved = rel, final, true
				doc.Path = final
			}
		} else {
			res.Deferred = true
			e.logger.Debug("orbit: move deferred", slog.String("path", rel), slog.Duration("age", age))
		}
	}
	if !res.Deferred {
		// Settled documents no longer need the age gate.
		e.tracker.Forget(res.Path)
	}

	created, err := e.syncMembers(doc)
	res.Created = created

	for _, dir := range res.Scaffolded {
		e.emit(Event{Type: EventScaffolded, Path: dir})
	}
	if res.Moved {
		e.emit(Event{Type: EventMoved, Path: res.Path, From: res.From})
	}
	for _, p := range created {
		e.emit(Event{Type: EventCreated, Path: p})
	}
	e.emit(Event{Type: EventProcessed, Path: res.Path})
	return res, err
}

// isDocument reports whether rel is a Markdown file outside the templates
// folder and the reserved temp files.
func (e *Engine) isDocument(rel string) bool {
	if !strings.EqualFold(path.Ext(rel), models.DocExt) {
		return false
	}
	if strings.HasPrefix(path.Base(rel), ".") {
		return false
	}
	return !e.inTemplates(rel)
}

func (e *Engine) inTemplates(rel string) bool {
	if e.templatesDir == "" || e.templatesDir == "." {
		return false
	}
	return rel == e.templatesDir || strings.HasPrefix(rel, e.templatesDir+"/")
}

func (e *Engine) emit(ev Event) {
	for _, fn := range e.callbacks {
		fn(ev)
	}
}

// documentFromMeta builds a Document from decoded frontmatter.
func documentFromMeta(rel string, meta map[string]any, body string) *models.Document {
	return &models.Document{
		Path:       rel,
		Kind:       models.Kind(strings.ToLower(frontmatter.String(meta["type"]))),
		Domain:     frontmatter.Ref(frontmatter.String(meta["domain"])),
		Direct:     frontmatter.Ref(frontmatter.String(meta["direct"])),
		Orbits:     frontmatter.RefList(meta["orbits"]),
		Satellites: frontmatter.RefList(meta["satellites"]),
		Meta:       meta,
		Body:       body,
	}
}

package orbit

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/templates"
)

// Orbit pairs a declared orbit token with the grouping it resolved to.
type Orbit struct {
	Token    string
	Grouping models.Grouping
}

// ResolveGroup decides which grouping token refers to. hint is the
// referring document's domain and referrer its vault-relative path; both may
// be empty. Nothing is created.
func (e *Engine) ResolveGroup(token, hint, referrer string) (models.Grouping, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveGroup(token, hint, referrer)
}

func (e *Engine) resolveGroup(token, hint, referrer string) (models.Grouping, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Grouping{}, fmt.Errorf("orbit: empty grouping reference: %w", apperr.ErrUnresolved)
	}
	if c, ok := e.registry.Resolve(token); ok {
		return models.Grouping{
			Name:        c.Name,
			Dir:         c.Folder(),
			Category:    c,
			Designation: models.Designated,
			IsCategory:  true,
		}, nil
	}

	cat, err := e.categoryFor(token, hint, referrer)
	if err != nil {
		return models.Grouping{}, err
	}

	if models.NumericPrefix(token) != "" {
		return models.Grouping{
			Name:        models.PlainName(token),
			Dir:         path.Join(cat.Folder(), token),
			Category:    cat,
			Designation: models.Designated,
		}, nil
	}

	if g, ok, err := e.findGrouping(token, referrer); err != nil {
		return models.Grouping{}, err
	} else if ok {
		return g, nil
	}

	return models.Grouping{
		Name:        token,
		Dir:         path.Join(cat.Inbox(), token),
		Category:    cat,
		Designation: models.Floating,
	}, nil
}

// categoryFor picks the category a new grouping named token belongs to.
func (e *Engine) categoryFor(token, hint, referrer string) (models.Category, error) {
	if hint != "" {
		if c, ok := e.registry.Resolve(hint); ok {
			return c, nil
		}
	}
	if c, ok := e.registry.Infer(token); ok {
		return c, nil
	}
	if referrer != "" {
		if c, ok := e.registry.FromPath(referrer); ok {
			return c, nil
		}
	}
	if e.strict {
		return models.Category{}, fmt.Errorf("orbit: no category for %q: %w", token, apperr.ErrUnresolved)
	}
	c := e.registry.Default()
	e.logger.Warn("orbit: falling back to default category",
		slog.String("token", token),
		slog.String("referrer", referrer),
		slog.String("category", c.Folder()),
	)
	return c, nil
}

// findGrouping searches the vault for an existing dashboard named token.
func (e *Engine) findGrouping(token, referrer string) (models.Grouping, bool, error) {
	matches, err := e.store.FindByName(token)
	if err != nil {
		return models.Grouping{}, false, fmt.Errorf("orbit: find %q: %w", token, err)
	}
	for _, m := range matches {
		if m == referrer || e.inTemplates(m) {
			continue
		}
		dir := path.Dir(m)
		folder := path.Base(dir)
		if dir == "." || isReserved(folder) {
			continue
		}
		if !strings.EqualFold(models.Stem(m), models.PlainName(folder)) {
			continue
		}
		cat, ok := e.registry.FromPath(dir)
		if !ok {
			cat = e.registry.Default()
		}
		g := models.Grouping{
			Name:        models.Stem(m),
			Dir:         dir,
			Category:    cat,
			Designation: models.Floating,
		}
		if models.NumericPrefix(folder) != "" {
			g.Designation = models.Designated
		}
		if dir == cat.Folder() {
			g.IsCategory = true
		}
		return g, true, nil
	}
	return models.Grouping{}, false, nil
}

// EnsureGrouping creates the grouping folder, its reserved subfolders, and its
// dashboard when missing. referrer, if set, seeds the dashboard satellites.
func (e *Engine) EnsureGrouping(g models.Grouping, referrer string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureGrouping(g, referrer)
}

func (e *Engine) ensureGrouping(g models.Grouping, referrer string) (bool, error) {
	created, err := e.registry.EnsureScaffold(g.Category)
	if err != nil || g.IsCategory {
		return created, err
	}

	for _, dir := range []string{g.Dir, path.Join(g.Dir, models.InboxDir), path.Join(g.Dir, models.SourceDir)} {
		if e.store.Exists(dir) {
			continue
		}
		if err := e.store.MkdirAll(dir); err != nil {
			return created, fmt.Errorf("orbit: scaffold %s: %w", g.Dir, err)
		}
		created = true
	}

	dash := g.Dashboard()
	if e.store.Exists(dash) {
		return created, nil
	}
	var satellites []string
	if referrer != "" {
		satellites = []string{models.Stem(referrer)}
	}
	content, err := e.renderer.Render(models.KindProject, templates.Data{
		Title:      g.Name,
		Category:   g.Category,
		Path:       g.Dir,
		Orbits:     []string{g.Category.Name},
		Satellites: satellites,
	})
	if err != nil {
		return created, fmt.Errorf("orbit: render dashboard %s: %w", dash, err)
	}
	if err := e.store.Create(dash, content); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return created, nil
		}
		return created, fmt.Errorf("orbit: write dashboard %s: %w", dash, err)
	}
	e.tracker.Observe(dash, e.now())
	e.logger.Info("orbit: created grouping",
		slog.String("path", g.Dir),
		slog.String("designation", g.Designation.String()),
	)
	return true, nil
}

func isReserved(folder string) bool {
	return folder == models.InboxDir || folder == models.SourceDir || folder == models.HiddenInbox
}

package orbit

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
)

// Promote turns the floating grouping at dir into a designated one: the
// folder is renamed to "<next number>-<name>" directly under its category and
// the dashboard is rewritten as a project.
func (e *Engine) Promote(dir string) (models.Grouping, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir = path.Clean(dir)
	cat, ok := e.registry.FromPath(dir)
	if !ok || path.Dir(dir) != cat.Inbox() {
		return models.Grouping{}, fmt.Errorf("orbit: promote %s: %w", dir, apperr.ErrNotFloating)
	}
	if !e.store.Exists(dir) {
		return models.Grouping{}, fmt.Errorf("orbit: promote %s: %w", dir, apperr.ErrNotFound)
	}

	num, err := e.registry.NextNumber(cat)
	if err != nil {
		return models.Grouping{}, err
	}
	name := path.Base(dir)
	g := models.Grouping{
		Name:        name,
		Dir:         path.Join(cat.Folder(), num+"-"+name),
		Category:    cat,
		Designation: models.Designated,
	}
	if err := e.store.Move(dir, g.Dir); err != nil {
		return models.Grouping{}, fmt.Errorf("orbit: promote %s: %w", dir, err)
	}
	e.tracker.Rekey(dir, g.Dir)

	if err := e.markProject(g.Dashboard()); err != nil {
		return g, err
	}
	if _, err := e.ensureGrouping(g, ""); err != nil {
		return g, err
	}

	e.logger.Info("orbit: promoted grouping", slog.String("from", dir), slog.String("to", g.Dir))
	e.emit(Event{Type: EventPromoted, Path: g.Dir, From: dir})
	return g, nil
}

// markProject rewrites the "type" of the dashboard at p to project. A missing
// dashboard is left for ensureGrouping to create.
func (e *Engine) markProject(p string) error {
	data, err := e.store.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("orbit: read dashboard %s: %w", p, err)
	}
	meta, body := frontmatter.Decode(data)
	if meta == nil {
		meta = map[string]any{}
	}
	if frontmatter.String(meta["type"]) == string(models.KindProject) {
		return nil
	}
	meta["type"] = string(models.KindProject)
	out, err := frontmatter.Encode(meta, body)
	if err != nil {
		return fmt.Errorf("orbit: encode dashboard %s: %w", p, err)
	}
	if err := e.store.Write(p, out); err != nil {
		return fmt.Errorf("orbit: write dashboard %s: %w", p, err)
	}
	return nil
}

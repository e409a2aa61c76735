package orbit

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/templates"
)

// SyncMembers creates a dust stub for every satellite of doc that is not yet
// a member of doc's grouping, and returns the created paths. Existing members
// are never rewritten.
func (e *Engine) SyncMembers(doc *models.Document) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncMembers(doc)
}

func (e *Engine) syncMembers(doc *models.Document) ([]string, error) {
	if len(doc.Satellites) == 0 {
		return nil, nil
	}
	owner := e.owningGrouping(doc)

	var created []string
	var errs []error
	for _, name := range doc.Satellites {
		member, err := e.hasMember(owner, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if member {
			continue
		}
		p := path.Join(owner.TargetDir(models.KindDust), name+models.DocExt)
		content, err := e.renderer.Render(models.KindDust, templates.Data{
			Title:    name,
			Category: owner.Category,
			Parent:   owner.Name,
			Path:     p,
			Orbits:   []string{owner.Name},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("orbit: render satellite %s: %w", name, err))
			continue
		}
		if err := e.store.Create(p, content); err != nil {
			if !errors.Is(err, apperr.ErrAlreadyExists) {
				errs = append(errs, fmt.Errorf("orbit: create satellite %s: %w", name, err))
			}
			continue
		}
		e.tracker.Observe(p, e.now())
		e.logger.Info("orbit: created satellite", slog.String("path", p), slog.String("parent", owner.Name))
		created = append(created, p)
	}
	return created, errors.Join(errs...)
}

// hasMember reports whether name already belongs to g: it sits in one of g's
// member folders, or it lives elsewhere but orbits g.
func (e *Engine) hasMember(g models.Grouping, name string) (bool, error) {
	file := name + models.DocExt
	for _, dir := range []string{g.Dir, g.TargetDir(models.KindDust), g.TargetDir(models.KindSource)} {
		if e.store.Exists(path.Join(dir, file)) {
			return true, nil
		}
	}
	matches, err := e.store.FindByName(name)
	if err != nil {
		return false, fmt.Errorf("orbit: find satellite %s: %w", name, err)
	}
	for _, m := range matches {
		if e.inTemplates(m) {
			continue
		}
		data, err := e.store.Read(m)
		if err != nil {
			continue
		}
		meta, _ := frontmatter.Decode(data)
		for _, ref := range frontmatter.RefList(meta["orbits"]) {
			if strings.EqualFold(models.PlainName(ref), g.Name) {
				return true, nil
			}
		}
	}
	return false, nil
}

// owningGrouping returns the grouping whose folder holds doc: its own folder,
// or the parent when doc sits in a reserved subfolder. A document at the vault
// root owns a grouping named after itself.
func (e *Engine) owningGrouping(doc *models.Document) models.Grouping {
	dir := path.Dir(doc.Path)
	if isReserved(path.Base(dir)) {
		dir = path.Dir(dir)
	}
	if dir == "." {
		cat, ok := e.registry.Resolve(doc.Domain)
		if !ok {
			cat = e.registry.Default()
		}
		return models.Grouping{
			Name:        models.Stem(doc.Path),
			Dir:         dir,
			Category:    cat,
			Designation: models.Floating,
		}
	}
	cat, ok := e.registry.FromPath(dir)
	if !ok {
		cat = e.registry.Default()
	}
	folder := path.Base(dir)
	g := models.Grouping{
		Name:        models.PlainName(folder),
		Dir:         dir,
		Category:    cat,
		Designation: models.Floating,
	}
	if models.NumericPrefix(folder) != "" {
		g.Designation = models.Designated
	}
	if dir == cat.Folder() {
		g.Name = cat.Name
		g.IsCategory = true
	}
	return g
}

package orbit

import (
	"log/slog"
	"path"
	"strings"

	"github.com/starford/orbit/internal/models"
)

// Place moves doc into the grouping selected from orbits and returns its
// final path and whether it moved. Move failures are logged, not returned.
func (e *Engine) Place(rel string, doc *models.Document, orbits []Orbit) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.place(rel, doc, orbits)
}

func (e *Engine) place(rel string, doc *models.Document, orbits []Orbit) (string, bool) {
	return e.moveTo(rel, e.destination(rel, doc, orbits))
}

// destination returns where doc belongs, or rel when it is already settled.
func (e *Engine) destination(rel string, doc *models.Document, orbits []Orbit) string {
	if len(orbits) == 0 || isAnchor(rel, doc.Kind) {
		return rel
	}
	target := e.selectTarget(rel, doc.Direct, orbits)
	return path.Join(target.Grouping.TargetDir(doc.Kind), path.Base(rel))
}

func (e *Engine) moveTo(rel, dest string) (string, bool) {
	if dest == rel {
		return rel, false
	}
	if e.store.Exists(dest) {
		e.logger.Warn("orbit: target already exists",
			slog.String("path", rel),
			slog.String("target", dest),
		)
		return rel, false
	}
	if err := e.store.Move(rel, dest); err != nil {
		e.logger.Error("orbit: move failed",
			slog.String("path", rel),
			slog.String("target", dest),
			slog.String("error", err.Error()),
		)
		return rel, false
	}
	e.tracker.Rekey(rel, dest)
	e.logger.Info("orbit: moved document", slog.String("from", rel), slog.String("to", dest))
	return dest, true
}

// selectTarget applies the "direct" tie-break. "*" and unknown values select
// the first orbit.
func (e *Engine) selectTarget(rel, direct string, orbits []Orbit) Orbit {
	if direct == "" || direct == "*" {
		return orbits[0]
	}
	for _, o := range orbits {
		if strings.EqualFold(o.Token, direct) || strings.EqualFold(o.Grouping.Name, direct) {
			return o
		}
	}
	e.logger.Warn("orbit: direct names no declared orbit",
		slog.String("path", rel),
		slog.String("direct", direct),
	)
	return orbits[0]
}

// isAnchor reports whether rel is the dashboard of its own folder. Anchors
// define their grouping and never move.
func isAnchor(rel string, kind models.Kind) bool {
	if kind != models.KindProject && kind != models.KindDomain {
		return false
	}
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	return strings.EqualFold(models.Stem(rel), models.PlainName(path.Base(dir)))
}

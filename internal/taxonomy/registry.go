// Package taxonomy holds the fixed set of top-level categories and creates
// their scaffolding on first reference.
package taxonomy

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
	"github.com/starford/orbit/internal/templates"
)

var folderRe = regexp.MustCompile(`^(\d{3})-(.+)$`)

// Registry resolves category references and owns category scaffolding.
type Registry struct {
	mu         sync.RWMutex
	categories []models.Category
	increment  int

	store    storage.Provider
	renderer *templates.Renderer
	logger   *slog.Logger
}

// New creates a registry over the configured categories, in order. The first
// category is the fallback for unresolvable references.
func New(store storage.Provider, renderer *templates.Renderer, categories []models.Category, increment int, logger *slog.Logger) *Registry {
	cats := make([]models.Category, len(categories))
	copy(cats, categories)
	return &Registry{
		categories: cats,
		increment:  increment,
		store:      store,
		renderer:   renderer,
		logger:     logger,
	}
}

// Categories returns a copy of the known categories.
func (r *Registry) Categories() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Category, len(r.categories))
	copy(out, r.categories)
	return out
}

// Default returns the first configured category.
func (r *Registry) Default() models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.categories) == 0 {
		return models.Category{}
	}
	return r.categories[0]
}

// Resolve maps "NNN-Name", "NNN", or "Name" to a known category.
func (r *Registry) Resolve(token string) (models.Category, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Category{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if num, _, found := strings.Cut(token, "-"); found && isDigits(num) {
		return r.byNumber(num)
	}
	if isDigits(token) {
		return r.byNumber(token)
	}
	for _, c := range r.categories {
		if strings.EqualFold(c.Name, token) {
			return c, true
		}
	}
	return models.Category{}, false
}

func (r *Registry) byNumber(num string) (models.Category, bool) {
	for _, c := range r.categories {
		if c.Number == num {
			return c, true
		}
	}
	return models.Category{}, false
}

// Infer guesses the category a grouping token belongs to: a token naming a
// category, or a numbered token whose number falls in a category's hundred.
func (r *Registry) Infer(token string) (models.Category, bool) {
	if c, ok := r.Resolve(token); ok {
		return c, true
	}
	prefix := models.NumericPrefix(token)
	if prefix == "" {
		return models.Category{}, false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return models.Category{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var best models.Category
	bestNum := -1
	for _, c := range r.categories {
		cn, err := strconv.Atoi(c.Number)
		if err != nil || cn > n || n >= cn+100 {
			continue
		}
		if cn > bestNum {
			best, bestNum = c, cn
		}
	}
	return best, bestNum >= 0
}

// FromPath returns the category owning a vault-relative path, taken from its
// first "NNN-Name" segment.
func (r *Registry) FromPath(rel string) (models.Category, bool) {
	for _, seg := range strings.Split(path.Clean(rel), "/") {
		m := folderRe.FindStringSubmatch(seg)
		if m == nil {
			continue
		}
		if c, ok := r.Resolve(m[1]); ok {
			return c, true
		}
		return models.Category{Number: m[1], Name: m[2]}, true
	}
	return models.Category{}, false
}

// EnsureScaffold creates the category folder, its hidden inbox, and its
// dashboard when missing. It reports whether anything was created.
func (r *Registry) EnsureScaffold(c models.Category) (bool, error) {
	created := false
	for _, dir := range []string{c.Folder(), c.Inbox()} {
		if r.store.Exists(dir) {
			continue
		}
		if err := r.store.MkdirAll(dir); err != nil {
			return created, fmt.Errorf("taxonomy: scaffold %s: %w", c.Folder(), err)
		}
		r.logger.Info("taxonomy: created folder", slog.String("path", dir))
		created = true
	}

	dash := c.Dashboard()
	if r.store.Exists(dash) {
		return created, nil
	}
	content, err := r.renderer.Render(models.KindDomain, templates.Data{
		Title:    c.Name,
		Category: c,
		Path:     c.Folder(),
	})
	if err != nil {
		return created, fmt.Errorf("taxonomy: render dashboard %s: %w", c.Folder(), err)
	}
	if err := r.store.Create(dash, content); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return created, nil
		}
		return created, fmt.Errorf("taxonomy: write dashboard %s: %w", c.Folder(), err)
	}
	r.logger.Info("taxonomy: created dashboard", slog.String("path", dash))
	return true, nil
}

// Discover registers "NNN-Name" folders at the vault root that are not
// configured, and returns the newly registered categories.
func (r *Registry) Discover() ([]models.Category, error) {
	dirs, err := r.store.Dirs("")
	if err != nil {
		return nil, fmt.Errorf("taxonomy: discover: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []models.Category
	for _, d := range dirs {
		m := folderRe.FindStringSubmatch(d)
		if m == nil {
			continue
		}
		if _, ok := r.byNumber(m[1]); ok {
			continue
		}
		c := models.Category{Number: m[1], Name: m[2]}
		r.categories = append(r.categories, c)
		added = append(added, c)
	}
	return added, nil
}

// NextNumber returns the number the next designated grouping of c receives:
// the highest existing designated number plus the increment, or the category
// number plus the increment when none exist.
func (r *Registry) NextNumber(c models.Category) (string, error) {
	base, err := strconv.Atoi(c.Number)
	if err != nil {
		return "", fmt.Errorf("taxonomy: category number %q: %w", c.Number, err)
	}
	var existing []int
	if r.store.Exists(c.Folder()) {
		dirs, err := r.store.Dirs(c.Folder())
		if err != nil {
			return "", fmt.Errorf("taxonomy: next number: %w", err)
		}
		for _, d := range dirs {
			if n, err := strconv.Atoi(models.NumericPrefix(d)); err == nil {
				existing = append(existing, n)
			}
		}
	}
	next := base + r.increment
	if len(existing) > 0 {
		sort.Ints(existing)
		next = existing[len(existing)-1] + r.increment
	}
	return fmt.Sprintf("%03d", next), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

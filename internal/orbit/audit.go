package orbit

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
)

// IssueKind classifies an audit finding.
type IssueKind string

const (
	IssueMissingCategory  IssueKind = "missing_category"
	IssueMissingInbox     IssueKind = "missing_inbox"
	IssueMissingDashboard IssueKind = "missing_dashboard"
	IssueMissingSubfolder IssueKind = "missing_subfolder"
	IssueMissingSatellite IssueKind = "missing_satellite"
	IssueMissingGrouping  IssueKind = "missing_grouping"
	IssueUnresolvedOrbit  IssueKind = "unresolved_orbit"
	IssueBrokenBackRef    IssueKind = "broken_backref"
)

// Issue is a single audit finding.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Path   string    `json:"path"`
	Detail string    `json:"detail,omitempty"`
}

// Audit inspects the vault without changing it and reports layout and
// relationship drift.
func (e *Engine) Audit() ([]Issue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var issues []Issue
	for _, c := range e.registry.Categories() {
		found, err := e.auditCategory(c)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}

	files, err := e.store.List("")
	if err != nil {
		return nil, fmt.Errorf("orbit: audit: %w", err)
	}
	for _, f := range files {
		if !e.isDocument(f.Path) {
			continue
		}
		data, err := e.store.Read(f.Path)
		if err != nil {
			continue
		}
		meta, body := frontmatter.Decode(data)
		if meta == nil {
			continue
		}
		issues = append(issues, e.auditDocument(documentFromMeta(f.Path, meta, body))...)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Kind < issues[j].Kind
	})
	return issues, nil
}

func (e *Engine) auditCategory(c models.Category) ([]Issue, error) {
	if !e.store.Exists(c.Folder()) {
		return []Issue{{Kind: IssueMissingCategory, Path: c.Folder()}}, nil
	}
	var issues []Issue
	if !e.store.Exists(c.Inbox()) {
		issues = append(issues, Issue{Kind: IssueMissingInbox, Path: c.Inbox()})
	}
	if !e.store.Exists(c.Dashboard()) {
		issues = append(issues, Issue{Kind: IssueMissingDashboard, Path: c.Dashboard()})
	}

	var groupings []string
	for _, parent := range []string{c.Folder(), c.Inbox()} {
		if !e.store.Exists(parent) {
			continue
		}
		dirs, err := e.store.Dirs(parent)
		if err != nil {
			return nil, fmt.Errorf("orbit: audit %s: %w", parent, err)
		}
		for _, d := range dirs {
			if !isReserved(d) && !strings.HasPrefix(d, ".") {
				groupings = append(groupings, path.Join(parent, d))
			}
		}
	}
	for _, dir := range groupings {
		if e.inTemplates(dir) {
			continue
		}
		for _, sub := range []string{models.InboxDir, models.SourceDir} {
			if p := path.Join(dir, sub); !e.store.Exists(p) {
				issues = append(issues, Issue{Kind: IssueMissingSubfolder, Path: p})
			}
		}
		dash := path.Join(dir, models.PlainName(path.Base(dir))+models.DocExt)
		if !e.store.Exists(dash) {
			issues = append(issues, Issue{Kind: IssueMissingDashboard, Path: dash})
		}
	}
	return issues, nil
}

func (e *Engine) auditDocument(doc *models.Document) []Issue {
	var issues []Issue
	for _, token := range doc.Orbits {
		g, err := e.resolveGroup(token, doc.Domain, doc.Path)
		if err != nil {
			if errors.Is(err, apperr.ErrUnresolved) {
				issues = append(issues, Issue{Kind: IssueUnresolvedOrbit, Path: doc.Path, Detail: token})
			}
			continue
		}
		if g.IsCategory {
			continue
		}
		if !e.store.Exists(g.Dashboard()) {
			issues = append(issues, Issue{Kind: IssueMissingGrouping, Path: doc.Path, Detail: token})
		}
	}

	if len(doc.Satellites) == 0 {
		return issues
	}
	owner := e.owningGrouping(doc)
	for _, name := range doc.Satellites {
		matches, err := e.store.FindByName(name)
		if err != nil {
			continue
		}
		if len(matches) == 0 {
			issues = append(issues, Issue{Kind: IssueMissingSatellite, Path: doc.Path, Detail: name})
			continue
		}
		if !e.pointsBack(matches[0], doc.Name(), owner.Name) {
			issues = append(issues, Issue{Kind: IssueBrokenBackRef, Path: matches[0], Detail: doc.Name()})
		}
	}
	return issues
}

// pointsBack reports whether the member at p lists the owning document or
// its grouping among its orbits.
func (e *Engine) pointsBack(p, docName, groupName string) bool {
	data, err := e.store.Read(p)
	if err != nil {
		return false
	}
	meta, body := frontmatter.Decode(data)
	if meta == nil {
		return false
	}
	member := documentFromMeta(p, meta, body)
	for _, o := range member.Orbits {
		if strings.EqualFold(o, docName) || strings.EqualFold(models.PlainName(o), groupName) {
			return true
		}
	}
	return false
}

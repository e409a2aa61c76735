// Package models defines the domain types for the ORBIT vault.
package models

import (
	"path"
	"strings"
	"time"
)

// Reserved folder names.
const (
	HiddenInbox = ".0-inbox"
	InboxDir    = "0-inbox"
	SourceDir   = "9-source"
	DocExt      = ".md"
)

// Kind is the declared document type from the "type" frontmatter key.
type Kind string

const (
	KindProject Kind = "project"
	KindSource  Kind = "source"
	KindDust    Kind = "dust"
	KindDomain  Kind = "domain"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindSource, KindDust, KindDomain:
		return true
	}
	return false
}

// Designation tells whether a grouping is numbered or still provisional.
type Designation int

const (
	Floating Designation = iota
	Designated
)

// String returns a human-readable representation of the designation.
func (d Designation) String() string {
	switch d {
	case Floating:
		return "floating"
	case Designated:
		return "designated"
	default:
		return "unknown"
	}
}

// Category is a top-level taxonomy node such as 200-Health.
type Category struct {
	Number string `json:"number" yaml:"number"`
	Name   string `json:"name" yaml:"name"`
}

// Folder returns the canonical "NNN-Name" folder token.
func (c Category) Folder() string {
	return c.Number + "-" + c.Name
}

// Dashboard returns the vault-relative path of the category dashboard.
func (c Category) Dashboard() string {
	return path.Join(c.Folder(), c.Name+DocExt)
}

// Inbox returns the vault-relative path of the category's hidden inbox.
func (c Category) Inbox() string {
	return path.Join(c.Folder(), HiddenInbox)
}

// Grouping is a project folder (or a category acting as one).
type Grouping struct {
	Name        string      `json:"name"`
	Dir         string      `json:"dir"`
	Category    Category    `json:"category"`
	Designation Designation `json:"designation"`
	IsCategory  bool        `json:"is_category,omitempty"`
}

// Dashboard returns the vault-relative path of the grouping dashboard.
func (g Grouping) Dashboard() string {
	return path.Join(g.Dir, g.Name+DocExt)
}

// TargetDir returns the folder a member document of the given kind belongs in.
func (g Grouping) TargetDir(k Kind) string {
	if g.IsCategory {
		return g.Category.Inbox()
	}
	if k == KindSource {
		return path.Join(g.Dir, SourceDir)
	}
	return path.Join(g.Dir, InboxDir)
}

// Document is a vault file with its decoded frontmatter.
type Document struct {
	Path       string
	Kind       Kind
	Domain     string
	Orbits     []string
	Satellites []string
	Direct     string
	Meta       map[string]any
	Body       string
}

// Name returns the file stem.
func (d *Document) Name() string {
	return Stem(d.Path)
}

// Edge is a directed relationship between two documents or groupings.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "orbit" or "satellite"
}

// FileMeta is a lightweight representation returned by list operations.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// PlainName strips a leading "NNN-" designation from a folder name.
func PlainName(folder string) string {
	i := 0
	for i < len(folder) && folder[i] >= '0' && folder[i] <= '9' {
		i++
	}
	if i > 0 && i < len(folder) && folder[i] == '-' {
		return folder[i+1:]
	}
	return folder
}

// NumericPrefix returns the leading digits of s, or "" if there are none.
func NumericPrefix(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

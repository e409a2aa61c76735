package templates

import (
	"strings"
	"testing"

	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/testutil"
)

var health = models.Category{Number: "200", Name: "Health"}

func TestNewRenderer_Succeeds(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() failed: %v", err)
	}
	for _, k := range Kinds {
		if _, ok := r.bodies[k]; !ok {
			t.Errorf("missing default template for %s", k)
		}
	}
}

func TestRender_Project(t *testing.T) {
	r, _ := NewRenderer()
	out, err := r.Render(models.KindProject, Data{
		Title:      "Yoga",
		Date:       "2024-01-02",
		Category:   health,
		Path:       "200-Health/.0-inbox/Yoga",
		Orbits:     []string{"Health"},
		Satellites: []string{"Morning flow"},
	})
	if err != nil {
		t.Fatalf("Render(project): %v", err)
	}
	meta, body := frontmatter.Decode(out)
	if meta == nil {
		t.Fatalf("rendered project has no frontmatter: %s", out)
	}
	if meta["type"] != "project" || meta["domain"] != "200-Health" || meta["created"] != "2024-01-02" {
		t.Errorf("meta = %v", meta)
	}
	if got := frontmatter.StringList(meta["orbits"]); len(got) != 1 || got[0] != "Health" {
		t.Errorf("orbits = %v", got)
	}
	if got := frontmatter.StringList(meta["satellites"]); len(got) != 1 || got[0] != "Morning flow" {
		t.Errorf("satellites = %v", got)
	}
	for _, want := range []string{"# Yoga", `FROM "200-Health/.0-inbox/Yoga/9-source"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRender_DustSeedsParent(t *testing.T) {
	r, _ := NewRenderer()
	out, err := r.Render(models.KindDust, Data{Title: "Idea", Category: health, Parent: "Yoga", Orbits: []string{"Yoga"}})
	if err != nil {
		t.Fatalf("Render(dust): %v", err)
	}
	meta, body := frontmatter.Decode(out)
	if got := frontmatter.StringList(meta["orbits"]); len(got) != 1 || got[0] != "Yoga" {
		t.Errorf("orbits = %v", got)
	}
	if meta["created"] == "" {
		t.Error("created date should default to today")
	}
	if !strings.Contains(body, "orbiting Yoga") {
		t.Errorf("body = %q", body)
	}
}

func TestRender_SourceHasSourceKey(t *testing.T) {
	r, _ := NewRenderer()
	out, _ := r.Render(models.KindSource, Data{Title: "Paper"})
	meta, _ := frontmatter.Decode(out)
	if _, ok := meta["source"]; !ok {
		t.Errorf("source key missing: %v", meta)
	}
	if meta["domain"] != "" {
		t.Errorf("domain = %v, want empty without category", meta["domain"])
	}
}

func TestRender_DomainOmitsRelations(t *testing.T) {
	r, _ := NewRenderer()
	out, _ := r.Render(models.KindDomain, Data{Title: "Health", Path: "200-Health"})
	meta, body := frontmatter.Decode(out)
	if _, ok := meta["orbits"]; ok {
		t.Errorf("domain dashboard should not declare orbits: %v", meta)
	}
	if !strings.Contains(body, "# Health Dashboard") {
		t.Errorf("body = %q", body)
	}
}

func TestRender_UnknownKind(t *testing.T) {
	r, _ := NewRenderer()
	if _, err := r.Render(models.Kind("bogus"), Data{}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLoadDir_Override(t *testing.T) {
	_, store := testutil.TestVault(t)
	_ = store.Write("templates/dust.md", []byte("---\ntype: dust\nstatus: draft\norbits: []\n---\nCustom {{.Title}} under {{.Parent}}\n"))

	r, _ := NewRenderer()
	n, err := r.LoadDir(store, "templates")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded = %d, want 1", n)
	}
	out, _ := r.Render(models.KindDust, Data{Title: "X", Parent: "P", Orbits: []string{"P"}})
	meta, body := frontmatter.Decode(out)
	if meta["status"] != "draft" {
		t.Errorf("extra key not carried: %v", meta)
	}
	if got := frontmatter.StringList(meta["orbits"]); len(got) != 1 || got[0] != "P" {
		t.Errorf("reserved orbits overridden: %v", got)
	}
	if !strings.Contains(body, "Custom X under P") {
		t.Errorf("body = %q", body)
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, store := testutil.TestVault(t)
	r, _ := NewRenderer()
	n, err := r.LoadDir(store, "templates")
	if err != nil || n != 0 {
		t.Errorf("LoadDir missing = (%d, %v), want (0, nil)", n, err)
	}
}

package orbit

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/checksum"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
	"github.com/starford/orbit/internal/taxonomy"
	"github.com/starford/orbit/internal/templates"
	"github.com/starford/orbit/internal/testutil"
)

var testCategories = testutil.Categories()

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	engine *Engine
	store  storage.Provider
	root   string
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	root, store := testutil.TestVault(t)
	renderer, err := templates.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := taxonomy.New(store, renderer, testCategories, 10, logger)
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	base := []Option{WithClock(clock.Now), WithMinAge(0), WithLogger(logger), WithTemplatesDir("templates")}
	e := New(store, reg, renderer, append(base, opts...)...)
	return &testEnv{engine: e, store: store, root: root, clock: clock}
}

func (env *testEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	if err := env.store.Write(rel, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) process(t *testing.T, rel string) Result {
	t.Helper()
	res, err := env.engine.Process(context.Background(), rel)
	if err != nil {
		t.Fatalf("Process(%s): %v", rel, err)
	}
	return res
}

func (env *testEnv) meta(t *testing.T, rel string) *models.Document {
	t.Helper()
	data, err := env.store.Read(rel)
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	meta, body := frontmatter.Decode(data)
	if meta == nil {
		t.Fatalf("%s has no frontmatter", rel)
	}
	return documentFromMeta(rel, meta, body)
}

func (env *testEnv) assertExists(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if !env.store.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
}

// snapshot captures every path in the vault with a checksum for files.
func (env *testEnv) snapshot(t *testing.T) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(env.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(env.root, p)
		if d.IsDir() {
			out[rel] = "dir"
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[rel] = checksum.Sum(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestProcess_DustMovesIntoFloatingGrouping(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\n---\nBody\n")

	res := env.process(t, "Stretch.md")
	want := "200-Health/.0-inbox/Yoga/0-inbox/Stretch.md"
	if !res.Moved || res.Path != want {
		t.Fatalf("result = %+v, want move to %s", res, want)
	}
	env.assertExists(t,
		"200-Health/.0-inbox",
		"200-Health/Health.md",
		"200-Health/.0-inbox/Yoga/0-inbox",
		"200-Health/.0-inbox/Yoga/9-source",
		"200-Health/.0-inbox/Yoga/Yoga.md",
		want,
	)
	if env.store.Exists("Stretch.md") {
		t.Error("original path still exists")
	}

	dash := env.meta(t, "200-Health/.0-inbox/Yoga/Yoga.md")
	if dash.Kind != models.KindProject {
		t.Errorf("dashboard kind = %s", dash.Kind)
	}
	if !slices.Contains(dash.Orbits, "Health") {
		t.Errorf("dashboard orbits = %v, want Health", dash.Orbits)
	}
	if !slices.Contains(dash.Satellites, "Stretch") {
		t.Errorf("dashboard satellites = %v, want Stretch", dash.Satellites)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: Health\norbits: [Yoga]\nsatellites: [Warmup]\n---\n")

	first := env.process(t, "Stretch.md")
	before := env.snapshot(t)

	second := env.process(t, first.Path)
	if second.Moved || len(second.Scaffolded) != 0 || len(second.Created) != 0 {
		t.Errorf("second pass changed something: %+v", second)
	}
	if after := env.snapshot(t); !mapsEqual(before, after) {
		t.Errorf("vault changed on second pass:\nbefore %v\nafter  %v", before, after)
	}
}

func TestProcess_AgeGate(t *testing.T) {
	env := newTestEnv(t, WithMinAge(time.Minute))
	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\n---\n")

	res := env.process(t, "Stretch.md")
	if res.Moved || !res.Deferred {
		t.Fatalf("young document moved: %+v", res)
	}
	env.assertExists(t, "Stretch.md", "200-Health/.0-inbox/Yoga/Yoga.md", "200-Health/.0-inbox/Yoga/0-inbox")

	env.clock.Advance(30 * time.Second)
	if res := env.process(t, "Stretch.md"); res.Moved {
		t.Fatal("moved before minimum age")
	}

	env.clock.Advance(30 * time.Second)
	res = env.process(t, "Stretch.md")
	if !res.Moved || res.Path != "200-Health/.0-inbox/Yoga/0-inbox/Stretch.md" {
		t.Fatalf("not moved at minimum age: %+v", res)
	}
	env.clock.Advance(time.Minute)
	if age := env.engine.Tracker().Age(res.Path, env.clock.Now()); age != 0 {
		t.Errorf("moved document still tracked: age %v", age)
	}
}

func TestProcess_SettledDocumentsAreForgotten(t *testing.T) {
	env := newTestEnv(t, WithMinAge(time.Minute))
	env.write(t, "200-Health/210-Yoga/Yoga.md", "---\ntype: project\ndomain: 200-Health\norbits: [Health]\n---\n")
	env.write(t, "Loose.md", "---\ntype: dust\n---\n")
	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\n---\n")

	for _, p := range []string{"200-Health/210-Yoga/Yoga.md", "Loose.md", "Stretch.md"} {
		env.process(t, p)
	}
	tr := env.engine.Tracker()
	if tr.Len() != 1 {
		t.Fatalf("tracked paths = %d, want only the deferred document", tr.Len())
	}
	env.clock.Advance(time.Minute)
	if age := tr.Age("Stretch.md", env.clock.Now()); age != time.Minute {
		t.Errorf("deferred age = %v, want 1m", age)
	}
	if age := tr.Age("Loose.md", env.clock.Now()); age != 0 {
		t.Errorf("settled document still tracked: age %v", age)
	}
}

func TestProcess_SourceRouting(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Paper.md", "---\ntype: source\ndomain: 200-Health\norbits: [Yoga]\n---\n")
	env.write(t, "Idea.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\n---\n")

	if res := env.process(t, "Paper.md"); res.Path != "200-Health/.0-inbox/Yoga/9-source/Paper.md" {
		t.Errorf("source placed at %s", res.Path)
	}
	if res := env.process(t, "Idea.md"); res.Path != "200-Health/.0-inbox/Yoga/0-inbox/Idea.md" {
		t.Errorf("dust placed at %s", res.Path)
	}
}

func TestProcess_DirectTieBreak(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Note.md", "---\ntype: dust\ndomain: 100-Self\norbits: [Alpha, Beta]\ndirect: beta\n---\n")

	res := env.process(t, "Note.md")
	if res.Path != "100-Self/.0-inbox/Beta/0-inbox/Note.md" {
		t.Errorf("placed at %s, want under Beta", res.Path)
	}
	env.assertExists(t, "100-Self/.0-inbox/Alpha/Alpha.md", "100-Self/.0-inbox/Beta/Beta.md")
}

func TestProcess_DirectWildcardAndUnknownUseFirstOrbit(t *testing.T) {
	for _, direct := range []string{"\"*\"", "Gamma"} {
		env := newTestEnv(t)
		env.write(t, "Note.md", "---\ntype: dust\ndomain: 100-Self\norbits: [Alpha, Beta]\ndirect: "+direct+"\n---\n")
		res := env.process(t, "Note.md")
		if res.Path != "100-Self/.0-inbox/Alpha/0-inbox/Note.md" {
			t.Errorf("direct %s: placed at %s, want under Alpha", direct, res.Path)
		}
	}
}

func TestProcess_DesignatedToken(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Pose.md", "---\ntype: dust\norbits: [210-Yoga]\n---\n")

	res := env.process(t, "Pose.md")
	if res.Path != "200-Health/210-Yoga/0-inbox/Pose.md" {
		t.Errorf("placed at %s", res.Path)
	}
	env.assertExists(t, "200-Health/210-Yoga/Yoga.md", "200-Health/210-Yoga/9-source")
}

func TestProcess_CategoryOrbitUsesHiddenInbox(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Loose.md", "---\ntype: dust\norbits: [Health]\n---\n")

	res := env.process(t, "Loose.md")
	if res.Path != "200-Health/.0-inbox/Loose.md" {
		t.Errorf("placed at %s", res.Path)
	}
	if env.store.Exists("200-Health/Health/0-inbox") {
		t.Error("category orbit created a nested grouping")
	}
}

func TestProcess_FindsExistingGroupingByName(t *testing.T) {
	env := newTestEnv(t)
	health := testCategories[2]
	g := models.Grouping{Name: "Yoga", Dir: "200-Health/210-Yoga", Category: health, Designation: models.Designated}
	if _, err := env.engine.EnsureGrouping(g, ""); err != nil {
		t.Fatal(err)
	}
	// A non-dashboard file with the same name must not be taken as the grouping.
	env.write(t, "300-Philosophy/.0-inbox/yoga.md", "---\ntype: dust\n---\n")
	env.write(t, "Pose.md", "---\ntype: dust\norbits: [yoga]\n---\n")

	res := env.process(t, "Pose.md")
	if res.Path != "200-Health/210-Yoga/0-inbox/Pose.md" {
		t.Errorf("placed at %s", res.Path)
	}
	if env.store.Exists("000-Origins/.0-inbox/yoga") {
		t.Error("created a duplicate floating grouping")
	}
}

func TestProcess_FallbackToDefaultCategory(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Thing.md", "---\ntype: dust\norbits: [Misc]\n---\n")

	res := env.process(t, "Thing.md")
	if res.Path != "000-Origins/.0-inbox/Misc/0-inbox/Thing.md" {
		t.Errorf("placed at %s", res.Path)
	}
}

func TestProcess_StrictLeavesUnresolvedInPlace(t *testing.T) {
	env := newTestEnv(t, WithStrict(true))
	env.write(t, "Thing.md", "---\ntype: dust\norbits: [Misc]\n---\n")

	_, err := env.engine.Process(context.Background(), "Thing.md")
	if !errors.Is(err, apperr.ErrUnresolved) {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
	env.assertExists(t, "Thing.md")
	if env.store.Exists("000-Origins") {
		t.Error("strict mode scaffolded the default category")
	}

	env.write(t, "Other.md", "---\ntype: dust\ndomain: Nowhere\n---\n")
	if _, err := env.engine.Process(context.Background(), "Other.md"); !errors.Is(err, apperr.ErrUnresolved) {
		t.Errorf("unknown domain err = %v, want ErrUnresolved", err)
	}
}

func TestProcess_TargetExistsIsRefused(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "200-Health/.0-inbox/Yoga/0-inbox/Note.md", "---\ntype: dust\n---\nkeep me\n")
	env.write(t, "Note.md", "---\ntype: dust\ndomain: Health\norbits: [Yoga]\n---\nnew\n")

	res := env.process(t, "Note.md")
	if res.Moved {
		t.Fatal("moved over an existing file")
	}
	data, _ := env.store.Read("200-Health/.0-inbox/Yoga/0-inbox/Note.md")
	if string(data) != "---\ntype: dust\n---\nkeep me\n" {
		t.Errorf("existing target overwritten: %q", data)
	}
}

func TestProcess_AnchorIsNotMoved(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "200-Health/210-Yoga/Yoga.md", "---\ntype: project\ndomain: 200-Health\norbits: [Health]\n---\n")

	res := env.process(t, "200-Health/210-Yoga/Yoga.md")
	if res.Moved {
		t.Errorf("dashboard moved to %s", res.Path)
	}
}

func TestProcess_SatellitesSeedReverseEdge(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "200-Health/210-Yoga/Yoga.md",
		"---\ntype: project\ndomain: 200-Health\norbits: [Health]\nsatellites: [Breathing]\n---\n")

	res := env.process(t, "200-Health/210-Yoga/Yoga.md")
	stub := "200-Health/210-Yoga/0-inbox/Breathing.md"
	if !slices.Contains(res.Created, stub) {
		t.Fatalf("created = %v, want %s", res.Created, stub)
	}
	member := env.meta(t, stub)
	if member.Kind != models.KindDust {
		t.Errorf("stub kind = %s", member.Kind)
	}
	if !slices.Contains(member.Orbits, "Yoga") {
		t.Errorf("stub orbits = %v, want Yoga", member.Orbits)
	}
	if member.Domain != "200-Health" {
		t.Errorf("stub domain = %q", member.Domain)
	}

	// The stub settles where it was created.
	if again := env.process(t, stub); again.Moved {
		t.Errorf("stub moved to %s", again.Path)
	}
}

func TestProcess_ExistingSatelliteNotRewritten(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "100-Self/.0-inbox/Plan/0-inbox/Journal.md", "---\ntype: dust\n---\nmine\n")
	env.write(t, "100-Self/.0-inbox/Plan/Plan.md", "---\ntype: project\nsatellites: [Journal]\n---\n")

	res := env.process(t, "100-Self/.0-inbox/Plan/Plan.md")
	if len(res.Created) != 0 {
		t.Errorf("created %v for existing member", res.Created)
	}
	data, _ := env.store.Read("100-Self/.0-inbox/Plan/0-inbox/Journal.md")
	if string(data) != "---\ntype: dust\n---\nmine\n" {
		t.Errorf("existing member rewritten: %q", data)
	}
}

func TestProcess_SharedSatelliteNamePerGrouping(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "200-Health/210-Yoga/Yoga.md", "---\ntype: project\norbits: [Health]\nsatellites: [Notes]\n---\n")
	env.write(t, "200-Health/220-Run/Run.md", "---\ntype: project\norbits: [Health]\nsatellites: [Notes]\n---\n")

	for _, dash := range []string{"200-Health/210-Yoga/Yoga.md", "200-Health/220-Run/Run.md"} {
		if res := env.process(t, dash); len(res.Created) != 1 {
			t.Errorf("%s: created = %v, want one stub", dash, res.Created)
		}
	}
	env.assertExists(t, "200-Health/210-Yoga/0-inbox/Notes.md", "200-Health/220-Run/0-inbox/Notes.md")
	if got := env.meta(t, "200-Health/220-Run/0-inbox/Notes.md").Orbits; !slices.Equal(got, []string{"Run"}) {
		t.Errorf("Run stub orbits = %v", got)
	}
}

func TestProcess_SatelliteOrbitingElsewhereCounts(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Breathing.md", "---\ntype: dust\norbits: [Yoga]\n---\n")
	env.write(t, "200-Health/210-Yoga/Yoga.md", "---\ntype: project\norbits: [Health]\nsatellites: [Breathing]\n---\n")

	if res := env.process(t, "200-Health/210-Yoga/Yoga.md"); len(res.Created) != 0 {
		t.Errorf("created %v for a member that already orbits Yoga", res.Created)
	}
}

func TestProcess_RootDocumentOwnsSatellites(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Hub.md", "---\ntype: project\nsatellites: [Leaf]\n---\n")

	res := env.process(t, "Hub.md")
	if !slices.Equal(res.Created, []string{"0-inbox/Leaf.md"}) {
		t.Fatalf("created = %v, want 0-inbox/Leaf.md", res.Created)
	}
	if got := env.meta(t, "0-inbox/Leaf.md").Orbits; !slices.Equal(got, []string{"Hub"}) {
		t.Errorf("stub orbits = %v, want Hub", got)
	}
}

func TestProcess_RepairsUnclosedSatellites(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "100-Self/.0-inbox/Plan/Plan.md", "---\ntype: project\nsatellites: {first, second\n---\n")

	res := env.process(t, "100-Self/.0-inbox/Plan/Plan.md")
	if res.Skipped {
		t.Fatal("repairable document skipped")
	}
	env.assertExists(t, "100-Self/.0-inbox/Plan/0-inbox/first.md", "100-Self/.0-inbox/Plan/0-inbox/second.md")
}

func TestProcess_SkipsUnusableInput(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Broken.md", "---\n: invalid: yaml: {{{\n  - [\n---\n")
	env.write(t, "Plain.md", "no frontmatter\n")
	env.write(t, "image.png", "png")
	env.write(t, "templates/dust.md", "---\ntype: dust\norbits: [Yoga]\n---\n")

	for _, p := range []string{"Broken.md", "Plain.md", "image.png", "templates/dust.md"} {
		res := env.process(t, p)
		if !res.Skipped {
			t.Errorf("%s: not skipped: %+v", p, res)
		}
	}
	if env.store.Exists("000-Origins/.0-inbox/Yoga") {
		t.Error("template file was processed")
	}
}

func TestProcess_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Process(context.Background(), "Gone.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if env.engine.Tracker().Len() != 0 {
		t.Error("missing file left tracked")
	}
}

func TestProcess_WikiLinkOrbits(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "Note.md", "---\ntype: dust\ndomain: \"[[200-Health]]\"\norbits:\n  - \"[[Yoga|practice]]\"\n---\n")

	res := env.process(t, "Note.md")
	if res.Path != "200-Health/.0-inbox/Yoga/0-inbox/Note.md" {
		t.Errorf("placed at %s", res.Path)
	}
}

func TestProcess_EmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	env := newTestEnv(t, WithCallback(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))
	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\nsatellites: [Warmup]\n---\n")
	env.process(t, "Stretch.md")

	mu.Lock()
	defer mu.Unlock()
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	for _, want := range []EventType{EventScaffolded, EventMoved, EventCreated, EventProcessed} {
		if !slices.Contains(types, want) {
			t.Errorf("missing %s in %v", want, types)
		}
	}
	if last := events[len(events)-1]; last.Type != EventProcessed || last.Path != "200-Health/.0-inbox/Yoga/0-inbox/Stretch.md" {
		t.Errorf("last event = %+v", last)
	}
}

func TestResolveGroup(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		token, hint, referrer string
		wantDir               string
		wantDesignation       models.Designation
		wantCategory          bool
	}{
		{"200", "", "", "200-Health", models.Designated, true},
		{"Yoga", "Health", "", "200-Health/.0-inbox/Yoga", models.Floating, false},
		{"210-Yoga", "", "", "200-Health/210-Yoga", models.Designated, false},
		{"Reading", "", "100-Self/.0-inbox/Note.md", "100-Self/.0-inbox/Reading", models.Floating, false},
		{"Reading", "", "", "000-Origins/.0-inbox/Reading", models.Floating, false},
	}
	for _, tt := range tests {
		g, err := env.engine.ResolveGroup(tt.token, tt.hint, tt.referrer)
		if err != nil {
			t.Errorf("ResolveGroup(%q): %v", tt.token, err)
			continue
		}
		if g.Dir != tt.wantDir || g.Designation != tt.wantDesignation || g.IsCategory != tt.wantCategory {
			t.Errorf("ResolveGroup(%q, %q, %q) = %+v, want dir %s %s", tt.token, tt.hint, tt.referrer, g, tt.wantDir, tt.wantDesignation)
		}
	}
	if env.store.Exists("200-Health") {
		t.Error("ResolveGroup created folders")
	}
}

func TestEnsureGrouping_ScaffoldComplete(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.engine.ResolveGroup("Yoga", "Health", "")
	if err != nil {
		t.Fatal(err)
	}
	created, err := env.engine.EnsureGrouping(g, "Stretch.md")
	if err != nil || !created {
		t.Fatalf("EnsureGrouping = %v, %v", created, err)
	}
	env.assertExists(t, g.Dir+"/0-inbox", g.Dir+"/9-source", g.Dashboard())

	created, err = env.engine.EnsureGrouping(g, "Other.md")
	if err != nil || created {
		t.Errorf("second EnsureGrouping = %v, %v", created, err)
	}
	files, _ := env.store.List(g.Dir)
	if len(files) != 1 {
		t.Errorf("grouping holds %d documents, want exactly the dashboard", len(files))
	}
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

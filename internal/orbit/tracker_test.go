package orbit

import (
	"testing"
	"time"
)

func TestTracker_ObserveKeepsFirst(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe("a.md", t0)
	tr.Observe("a.md", t0.Add(time.Hour))
	if age := tr.Age("a.md", t0.Add(2*time.Hour)); age != 2*time.Hour {
		t.Errorf("age = %v, want 2h", age)
	}
	if age := tr.Age("b.md", t0); age != 0 {
		t.Errorf("untracked age = %v", age)
	}
}

func TestTracker_RekeyFolder(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe("cat/.0-inbox/Yoga/Yoga.md", t0)
	tr.Observe("cat/.0-inbox/Yoga/0-inbox/Pose.md", t0)
	tr.Observe("cat/.0-inbox/Yogalates/Yogalates.md", t0)

	tr.Rekey("cat/.0-inbox/Yoga", "cat/210-Yoga")

	now := t0.Add(time.Minute)
	for _, p := range []string{"cat/210-Yoga/Yoga.md", "cat/210-Yoga/0-inbox/Pose.md", "cat/.0-inbox/Yogalates/Yogalates.md"} {
		if tr.Age(p, now) != time.Minute {
			t.Errorf("%s not tracked after rekey", p)
		}
	}
	if tr.Age("cat/.0-inbox/Yoga/Yoga.md", now) != 0 {
		t.Error("old key still tracked")
	}
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker()
	tr.Observe("a.md", time.Now())
	tr.Forget("a.md")
	if tr.Len() != 0 {
		t.Error("Forget left entry")
	}
}

package cache

import (
	"errors"
	"sort"
	"testing"
	"time"
)

type payload struct {
	Notes  string   `json:"notes"`
	Points []string `json:"points"`
}

func newTestDir(t *testing.T) Dir {
	d := New(t.TempDir() + "/cache")
	d.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC) }
	return d
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := newTestDir(t)
	in := payload{Notes: "follow up on review", Points: []string{"a", "b"}}
	if err := d.WriteSnapshot("m1", in); err != nil {
		t.Fatal(err)
	}
	var out payload
	savedAt, err := d.ReadSnapshot("m1", &out)
	if err != nil {
		t.Fatal(err)
	}
	if savedAt != "2025-06-02T09:30:00Z" {
		t.Errorf("savedAt = %s", savedAt)
	}
	if out.Notes != in.Notes || len(out.Points) != 2 {
		t.Errorf("state = %+v", out)
	}
}

func TestWriteReplacesPrevious(t *testing.T) {
	d := newTestDir(t)
	if err := d.WriteSnapshot("m1", payload{Notes: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteSnapshot("m1", payload{Notes: "second"}); err != nil {
		t.Fatal(err)
	}
	var out payload
	if _, err := d.ReadSnapshot("m1", &out); err != nil {
		t.Fatal(err)
	}
	if out.Notes != "second" {
		t.Fatalf("notes = %q", out.Notes)
	}
	ids, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("list = %v", ids)
	}
}

func TestReadMissing(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.ReadSnapshot("ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListAndRemove(t *testing.T) {
	d := newTestDir(t)
	// List on a directory that was never created.
	ids, err := d.List()
	if err != nil || ids != nil {
		t.Fatalf("empty list = %v, %v", ids, err)
	}

	for _, id := range []string{"m2", "m1"} {
		if err := d.WriteSnapshot(id, payload{}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err = d.List()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Fatalf("list = %v", ids)
	}

	if err := d.Remove("m1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove("m1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := d.ReadSnapshot("m1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatal("snapshot survived remove")
	}
}

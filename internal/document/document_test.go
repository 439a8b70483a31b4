package document

import (
	"errors"
	"testing"
)

func TestDocument_Edits(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		edit    func(d *Document) error
		want    string
		change  Change
	}{
		{
			name:    "insert at end",
			initial: "foo",
			edit:    func(d *Document) error { return d.InsertText(3, "bar") },
			want:    "foobar",
			change:  Change{Offset: 3, Inserted: "bar", Revision: 1},
		},
		{
			name:    "insert at start",
			initial: "bar",
			edit:    func(d *Document) error { return d.InsertText(0, "foo") },
			want:    "foobar",
			change:  Change{Offset: 0, Inserted: "foo", Revision: 1},
		},
		{
			name:    "delete",
			initial: "foobar",
			edit: func(d *Document) error {
				_, err := d.DeleteText(2, 2)
				return err
			},
			want:   "foar",
			change: Change{Offset: 2, Removed: "ob", Revision: 1},
		},
		{
			name:    "replace",
			initial: "foobar",
			edit:    func(d *Document) error { return d.Replace(0, 3, "baz") },
			want:    "bazbar",
			change:  Change{Offset: 0, Inserted: "baz", Removed: "foo", Revision: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.initial)
			var got []Change
			d.Subscribe(func(c Change) { got = append(got, c) })

			if err := tt.edit(d); err != nil {
				t.Fatalf("edit error = %v", err)
			}
			if d.Text() != tt.want {
				t.Errorf("Text() = %q, want %q", d.Text(), tt.want)
			}
			if len(got) != 1 || got[0] != tt.change {
				t.Errorf("changes = %v, want [%v]", got, tt.change)
			}
		})
	}
}

func TestDocument_Range(t *testing.T) {
	d := New("héllo")

	tests := []struct {
		name   string
		offset int
		n      int
		want   error
	}{
		{"negative", -1, 0, ErrOutOfRange},
		{"past end", 4, 3, ErrOutOfRange},
		{"inside rune", 2, 1, ErrNotBoundary},
		{"ok", 1, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.checkRange(tt.offset, tt.n)
			if !errors.Is(err, tt.want) {
				t.Errorf("checkRange(%d,%d) = %v, want %v", tt.offset, tt.n, err, tt.want)
			}
		})
	}

	if err := d.InsertText(10, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("InsertText out of range error = %v", err)
	}
	if d.Revision() != 0 {
		t.Errorf("Revision() = %d after failed edit, want 0", d.Revision())
	}
}

func TestDocument_SuppressNotifications(t *testing.T) {
	d := New("")
	calls := 0
	d.Subscribe(func(Change) { calls++ })

	err := d.SuppressNotifications(func() error {
		if !d.Suppressed() {
			t.Error("Suppressed() = false inside SuppressNotifications")
		}
		return d.InsertText(0, "quiet")
	})
	if err != nil {
		t.Fatalf("SuppressNotifications error = %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d during suppression, want 0", calls)
	}

	func() {
		defer func() { _ = recover() }()
		_ = d.SuppressNotifications(func() error { panic("boom") })
	}()
	if d.Suppressed() {
		t.Error("Suppressed() = true after panic")
	}

	_ = d.InsertText(0, "x")
	if calls != 1 {
		t.Errorf("calls = %d after suppression, want 1", calls)
	}
}

func TestDocument_Unsubscribe(t *testing.T) {
	d := New("")
	calls := 0
	unsubscribe := d.Subscribe(func(Change) { calls++ })
	_ = d.InsertText(0, "a")
	unsubscribe()
	unsubscribe()
	_ = d.InsertText(0, "b")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDocument_ListenerCanRead(t *testing.T) {
	d := New("a")
	var seen string
	d.Subscribe(func(Change) { seen = d.Text() })

	if err := d.InsertText(1, "b"); err != nil {
		t.Fatal(err)
	}
	if seen != "ab" {
		t.Errorf("listener saw %q, want %q", seen, "ab")
	}
}

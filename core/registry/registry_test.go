package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	dberrors "github.com/FocuswithJustin/attachdb/core/errors"
)

func TestNew(t *testing.T) {
	r := New("/data/main.db")
	if got := r.List(); !reflect.DeepEqual(got, []string{"main", "temp"}) {
		t.Errorf("List() = %v, want [main temp]", got)
	}
	entries := r.Entries()
	if entries[0].Path != "/data/main.db" {
		t.Errorf("main path = %q", entries[0].Path)
	}
	if !entries[0].Protected() || !entries[1].Protected() {
		t.Error("main and temp should be protected")
	}
}

func TestAttachOrder(t *testing.T) {
	r := New("")
	for _, name := range []string{"zeta", "alpha", "attached"} {
		if err := r.Attach(name, name+".db"); err != nil {
			t.Fatalf("Attach(%q) error = %v", name, err)
		}
	}
	want := []string{"main", "temp", "zeta", "alpha", "attached"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
	last := r.Entries()[4]
	if last.Path != "attached.db" || last.AttachedAt.IsZero() {
		t.Errorf("entry = %+v", last)
	}
}

func TestAttachDuplicate(t *testing.T) {
	r := New("")
	if err := r.Attach("aux", "aux.db"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	for _, name := range []string{"aux", "AUX", "main", "Main", "temp", "TEMP"} {
		err := r.Attach(name, "other.db")
		if !errors.Is(err, dberrors.ErrDuplicateSchema) {
			t.Errorf("Attach(%q) error = %v, want ErrDuplicateSchema", name, err)
		}
	}
	if r.Len() != 3 {
		t.Errorf("failed attach changed the registry: %v", r.List())
	}
}

func TestAttachEmptyName(t *testing.T) {
	r := New("")
	if err := r.Attach(" ", "x.db"); !errors.Is(err, dberrors.ErrMalformedIdentifier) {
		t.Errorf("Attach(blank) error = %v, want ErrMalformedIdentifier", err)
	}
}

func TestDetach(t *testing.T) {
	r := New("")
	_ = r.Attach("a", "a.db")
	_ = r.Attach("b", "b.db")
	_ = r.Attach("c", "c.db")

	if err := r.Detach("B"); err != nil {
		t.Fatalf("Detach(B) error = %v", err)
	}
	want := []string{"main", "temp", "a", "c"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if r.Contains("b") {
		t.Error("b still registered")
	}

	// Re-attaching goes to the end.
	if err := r.Attach("b", "b.db"); err != nil {
		t.Fatalf("re-Attach(b) error = %v", err)
	}
	want = []string{"main", "temp", "a", "c", "b"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestDetachErrors(t *testing.T) {
	r := New("")
	tests := []struct {
		name string
		want error
	}{
		{"main", dberrors.ErrProtectedSchema},
		{"temp", dberrors.ErrProtectedSchema},
		{"MAIN", dberrors.ErrProtectedSchema},
		{"missing", dberrors.ErrUnknownSchema},
	}
	for _, tt := range tests {
		if err := r.CheckDetach(tt.name); !errors.Is(err, tt.want) {
			t.Errorf("CheckDetach(%q) error = %v, want %v", tt.name, err, tt.want)
		}
		if err := r.Detach(tt.name); !errors.Is(err, tt.want) {
			t.Errorf("Detach(%q) error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"main", "temp"}) {
		t.Errorf("List() = %v after failed detaches", got)
	}
}

func TestCanonical(t *testing.T) {
	r := New("")
	_ = r.Attach("Attached", "x.db")

	got, ok := r.Canonical("ATTACHED")
	if !ok || got != "Attached" {
		t.Errorf("Canonical(ATTACHED) = %q, %v", got, ok)
	}
	if _, ok := r.Canonical("nope"); ok {
		t.Error("Canonical(nope) found")
	}
	if !r.Contains("attached") || !r.Contains("main") || !r.Contains("temp") {
		t.Error("Contains() missing registered names")
	}
}

func TestListIsCopy(t *testing.T) {
	r := New("")
	names := r.List()
	names[0] = "mutated"
	if r.List()[0] != "main" {
		t.Error("List() exposed internal state")
	}
}

func TestConcurrentSnapshots(t *testing.T) {
	r := New("")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("s%d", i)
			_ = r.Attach(name, name+".db")
			_ = r.Detach(name)
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				names := r.List()
				if len(names) < 2 || names[0] != "main" || names[1] != "temp" {
					t.Errorf("inconsistent snapshot: %v", names)
					return
				}
			}
		}()
	}
	wg.Wait()
}

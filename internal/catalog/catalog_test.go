package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefault(t *testing.T) {
	t.Parallel()
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ev, ok := c.Lookup("opening-keynote")
	if !ok || ev.Kind != KindEvent || ev.Place() != "Main Hall" {
		t.Fatalf("event = %+v", ev)
	}
	tr, ok := c.Lookup("go-workshop")
	if !ok || tr.Kind != KindTraining || tr.Place() != "Lab 2" {
		t.Fatalf("training = %+v", tr)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("unexpected item")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"bad json":     `{`,
		"missing id":   `{"events":[{"title":"x"}]}`,
		"duplicate id": `{"events":[{"id":"a"}],"trainings":[{"id":"a"}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.json")
	raw := `{"events":[{"id":"b","date":"2025-02-02"},{"id":"a","date":"2025-01-01"}]}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if all := c.All(); len(all) != 2 || all[0].ID != "a" {
		t.Fatalf("order = %+v", all)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHandlerFiltersKind(t *testing.T) {
	t.Parallel()
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	NewHandler(c).List(rec, httptest.NewRequest(http.MethodGet, "/api/catalog?kind=training", nil))

	var items []Item
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("trainings = %d", len(items))
	}
	for _, it := range items {
		if it.Kind != KindTraining {
			t.Fatalf("unexpected kind %q", it.Kind)
		}
	}
}

// Package catalog holds the static event and training records of the
// conference. Records are read once at startup and never change.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

//go:embed catalog.json
var defaultCatalog []byte

type Kind string

const (
	KindEvent    Kind = "event"
	KindTraining Kind = "training"
)

// Item is an event or a training. Date is YYYY-MM-DD and StartTime is a
// local wall-clock time such as "09:00" or "9:00 AM".
type Item struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime,omitempty"`
	Location    string `json:"location,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Speaker     string `json:"speaker,omitempty"`
	Trainer     string `json:"trainer,omitempty"`
}

// Place is where the item happens: the location of an event or the venue
// of a training.
func (i Item) Place() string {
	if i.Location != "" {
		return i.Location
	}
	return i.Venue
}

type file struct {
	Events    []Item `json:"events"`
	Trainings []Item `json:"trainings"`
}

// Catalog indexes items by id.
type Catalog struct {
	items []Item
	byID  map[string]Item
}

// Load reads the catalog at path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{byID: map[string]Item{}}
	add := func(it Item, kind Kind) error {
		if it.ID == "" {
			return fmt.Errorf("catalog %s %q has no id", kind, it.Title)
		}
		if _, dup := c.byID[it.ID]; dup {
			return fmt.Errorf("duplicate catalog id %q", it.ID)
		}
		it.Kind = kind
		c.byID[it.ID] = it
		c.items = append(c.items, it)
		return nil
	}
	for _, it := range f.Events {
		if err := add(it, KindEvent); err != nil {
			return nil, err
		}
	}
	for _, it := range f.Trainings {
		if err := add(it, KindTraining); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(c.items, func(i, j int) bool { return c.items[i].Date < c.items[j].Date })
	return c, nil
}

// Lookup finds an event or training by id.
func (c *Catalog) Lookup(id string) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// All returns every item ordered by date.
func (c *Catalog) All() []Item {
	return append([]Item{}, c.items...)
}

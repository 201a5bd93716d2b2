package reminder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/catalog"
)

// Lookuper resolves a bookmarked id to its catalog record.
type Lookuper interface {
	Lookup(id string) (catalog.Item, bool)
}

// Reminder is one planned local notification.
type Reminder struct {
	EventID string
	Title   string
	Place   string
	StartAt time.Time
	FireAt  time.Time
}

var timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// ParseStart combines a YYYY-MM-DD date and a wall-clock start time in loc.
func ParseStart(date, start string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	start = strings.TrimSpace(start)
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, start, loc)
		if err != nil {
			continue
		}
		return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("parse start time %q", start)
}

// Plan computes a reminder lead before the start of every bookmarked
// item. Unknown ids and unparsable times are reported in skipped; fire
// times not after now are dropped silently. Results are ordered by fire
// time.
func Plan(bookmarks []string, cat Lookuper, now time.Time, loc *time.Location, lead time.Duration) (planned []Reminder, skipped []error) {
	for _, id := range bookmarks {
		it, ok := cat.Lookup(id)
		if !ok {
			skipped = append(skipped, fmt.Errorf("bookmark %q: not in catalog", id))
			continue
		}
		start, err := ParseStart(it.Date, it.StartTime, loc)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("bookmark %q: %w", id, err))
			continue
		}
		fireAt := start.Add(-lead)
		if !fireAt.After(now) {
			continue
		}
		planned = append(planned, Reminder{EventID: id, Title: it.Title, Place: it.Place(), StartAt: start, FireAt: fireAt})
	}
	sort.SliceStable(planned, func(i, j int) bool { return planned[i].FireAt.Before(planned[j].FireAt) })
	return planned, skipped
}

// Body is the notification text naming the item and where it happens.
func (r Reminder) Body(lead time.Duration) string {
	mins := int(lead.Round(time.Minute) / time.Minute)
	when := fmt.Sprintf("starts in %d minutes", mins)
	if mins == 1 {
		when = "starts in 1 minute"
	}
	if r.Place == "" {
		return fmt.Sprintf("%s %s", r.Title, when)
	}
	return fmt.Sprintf("%s %s at %s", r.Title, when, r.Place)
}

package reminder

import (
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(`{
		"events": [
			{"id":"keynote","title":"Keynote","date":"2025-11-20","startTime":"09:00","location":"Main Hall"},
			{"id":"evening","title":"Evening","date":"2025-11-20","startTime":"6:30 PM","location":"Terrace"},
			{"id":"early","title":"Early","date":"2025-11-20","startTime":"08:10"},
			{"id":"broken","title":"Broken","date":"2025-11-20","startTime":"soon"}
		],
		"trainings": [
			{"id":"workshop","title":"Workshop","date":"2025-11-21","startTime":"10:00","venue":"Lab 2"}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestParseStart(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("EAT", 3*3600)
	tests := []struct {
		date, start string
		want        time.Time
		wantErr     bool
	}{
		{"2025-11-20", "09:00", time.Date(2025, 11, 20, 9, 0, 0, 0, loc), false},
		{"2025-11-20", "6:30 PM", time.Date(2025, 11, 20, 18, 30, 0, 0, loc), false},
		{"2025-11-20", "12:05am", time.Date(2025, 11, 20, 0, 5, 0, 0, loc), false},
		{"2025-11-20", " 14:15:30 ", time.Date(2025, 11, 20, 14, 15, 30, 0, loc), false},
		{"20/11/2025", "09:00", time.Time{}, true},
		{"2025-11-20", "noon", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseStart(tt.date, tt.start, loc)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseStart(%q, %q) err = %v", tt.date, tt.start, err)
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Fatalf("ParseStart(%q, %q) = %v, want %v", tt.date, tt.start, got, tt.want)
		}
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2025, 11, 20, 8, 0, 0, 0, loc)

	planned, skipped := Plan(
		[]string{"workshop", "keynote", "early", "missing", "broken", "evening"},
		testCatalog(t), now, loc, 15*time.Minute,
	)
	if len(skipped) != 2 {
		t.Fatalf("skipped = %v", skipped)
	}
	want := []struct {
		id     string
		fireAt time.Time
	}{
		{"keynote", time.Date(2025, 11, 20, 8, 45, 0, 0, loc)},
		{"evening", time.Date(2025, 11, 20, 18, 15, 0, 0, loc)},
		{"workshop", time.Date(2025, 11, 21, 9, 45, 0, 0, loc)},
	}
	if len(planned) != len(want) {
		t.Fatalf("planned = %+v", planned)
	}
	for i, w := range want {
		if planned[i].EventID != w.id || !planned[i].FireAt.Equal(w.fireAt) {
			t.Fatalf("planned[%d] = %+v, want %s at %v", i, planned[i], w.id, w.fireAt)
		}
	}
	// "early" starts at 08:10, so its fire time 07:55 has passed.
	for _, p := range planned {
		if p.EventID == "early" {
			t.Fatal("past reminder planned")
		}
	}
}

func TestReminderBody(t *testing.T) {
	t.Parallel()
	r := Reminder{Title: "Workshop", Place: "Lab 2"}
	if got := r.Body(15 * time.Minute); got != "Workshop starts in 15 minutes at Lab 2" {
		t.Fatalf("body = %q", got)
	}
	r.Place = ""
	if got := r.Body(time.Minute); got != "Workshop starts in 1 minute" {
		t.Fatalf("body = %q", got)
	}
}

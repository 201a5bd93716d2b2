// Package reminder turns bookmarks into local notifications fired a fixed
// lead before each bookmarked item starts.
package reminder

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
)

type Options struct {
	Lead     time.Duration
	Location *time.Location
	Icon     string
	Now      func() time.Time
}

// Scheduler keeps one-time jobs per identity, tagged with the uid. It
// never asks for notification permission.
type Scheduler struct {
	s        gocron.Scheduler
	cat      Lookuper
	notifier notice.Notifier
	opts     Options
	logger   *zap.SugaredLogger

	mu sync.Mutex
}

// NewGocron builds and starts the process-wide gocron scheduler.
func NewGocron(loc *time.Location, logger *zap.SugaredLogger) (gocron.Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(NewGocronLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s.Start()
	return s, nil
}

func New(s gocron.Scheduler, cat Lookuper, notifier notice.Notifier, opts Options, logger *zap.SugaredLogger) *Scheduler {
	if opts.Lead <= 0 {
		opts.Lead = 15 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{s: s, cat: cat, notifier: notifier, opts: opts, logger: logger}
}

// Reschedule drops every pending reminder of uid and, when perm is
// granted, schedules the full bookmark set again. It returns the number
// of reminders scheduled.
func (r *Scheduler) Reschedule(uid string, bookmarks []string, perm notice.Permission) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.s.RemoveByTags(tag(uid))
	if perm != notice.PermissionGranted {
		return 0
	}

	planned, skipped := Plan(bookmarks, r.cat, r.opts.Now(), r.opts.Location, r.opts.Lead)
	for _, err := range skipped {
		r.logger.Debugw("reminder skipped", "uid", uid, "err", err)
	}
	n := 0
	for _, rem := range planned {
		msg := notice.Local(rem.Title, rem.Body(r.opts.Lead), r.opts.Icon)
		_, err := r.s.NewJob(
			gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(rem.FireAt)),
			gocron.NewTask(func() { r.notifier.Notify(uid, msg) }),
			gocron.WithName(uid+"/"+rem.EventID),
			gocron.WithTags(tag(uid)),
		)
		if err != nil {
			r.logger.Warnw("schedule reminder failed", "uid", uid, "event_id", rem.EventID, "err", err)
			continue
		}
		n++
	}
	r.logger.Debugw("reminders scheduled", "uid", uid, "count", n, "bookmarks", len(bookmarks))
	return n
}

// Cancel drops every pending reminder of uid.
func (r *Scheduler) Cancel(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.RemoveByTags(tag(uid))
}

// Pending counts the scheduled reminders of uid.
func (r *Scheduler) Pending(uid string) int {
	n := 0
	for _, j := range r.s.Jobs() {
		for _, t := range j.Tags() {
			if t == tag(uid) {
				n++
				break
			}
		}
	}
	return n
}

func (r *Scheduler) Shutdown() error {
	return r.s.Shutdown()
}

func tag(uid string) string { return "reminder:" + uid }

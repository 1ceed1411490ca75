// Package grouping turns a synchronized notification collection into render-ready sections.
package grouping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lostfound-sync/internal/domain"
)

// Section is one fixed notification category and its heading.
type Section struct {
	Type  domain.NotificationType `json:"type"`
	Title string                  `json:"title"`
}

// DefaultOrder is the section order of the notifications screen.
var DefaultOrder = []Section{
	{Type: domain.NotificationMatch, Title: "Matches"},
	{Type: domain.NotificationMessage, Title: "Messages"},
	{Type: domain.NotificationStatus, Title: "Status updates"},
	{Type: domain.NotificationReminder, Title: "Reminders"},
}

// ImageResolver turns a payload image reference into a URL a client can load.
type ImageResolver interface {
	ImageURL(ctx context.Context, ref string) (string, error)
}

// Entry is a notification plus its display-only derived fields.
type Entry struct {
	domain.Notification
	RelativeTime string `json:"relative_time"`
	ExpiresIn    string `json:"expires_in,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// SectionView is a non-empty section of the projection.
type SectionView struct {
	Section
	Count   int     `json:"count"`
	Unread  int     `json:"unread"`
	Entries []Entry `json:"entries"`
}

// Grouper partitions notifications into Order. Types not listed in Order are left out.
type Grouper struct {
	Order  []Section
	Now    func() time.Time
	Images ImageResolver
}

func New(images ImageResolver) *Grouper {
	return &Grouper{Order: DefaultOrder, Now: time.Now, Images: images}
}

// Group builds the sections for c. Expired entries never appear, whether or not a sweep has run.
func (g *Grouper) Group(ctx context.Context, c []domain.Notification) []SectionView {
	now := g.now()
	order := g.Order
	if order == nil {
		order = DefaultOrder
	}
	buckets := make(map[domain.NotificationType][]Entry, len(order))
	for _, n := range c {
		if n.Expired(now) {
			continue
		}
		buckets[n.Type] = append(buckets[n.Type], g.entry(ctx, n, now))
	}
	out := make([]SectionView, 0, len(order))
	for _, s := range order {
		entries := buckets[s.Type]
		if len(entries) == 0 {
			continue
		}
		unread := 0
		for _, e := range entries {
			if !e.Read {
				unread++
			}
		}
		out = append(out, SectionView{Section: s, Count: len(entries), Unread: unread, Entries: entries})
	}
	return out
}

func (g *Grouper) entry(ctx context.Context, n domain.Notification, now time.Time) Entry {
	e := Entry{Notification: n, RelativeTime: RelativeTime(n.CreatedAt, now)}
	if n.ExpiresAt != nil && n.ExpiresAt.After(now) {
		e.ExpiresIn = Countdown(*n.ExpiresAt, now)
	}
	if ref := n.ImageRef(); ref != "" && g.Images != nil {
		url, err := g.Images.ImageURL(ctx, ref)
		if err != nil {
			slog.Warn("could not resolve notification image", "notification", n.NotificationID, "err", err)
		} else {
			e.ImageURL = url
		}
	}
	return e
}

func (g *Grouper) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// MarkAllRead returns the ids a mark-all-read issued at now applies to: every visible, unread
// notification. Rows that expire or arrive later are not part of the batch.
func MarkAllRead(c []domain.Notification, now time.Time) []string {
	var ids []string
	for _, n := range c {
		if n.Expired(now) || n.Read {
			continue
		}
		ids = append(ids, n.NotificationID)
	}
	return ids
}

// Unread counts visible unread notifications, for badges.
func Unread(c []domain.Notification, now time.Time) int {
	return len(MarkAllRead(c, now))
}

var relMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "just now", DivBy: time.Second},
	{D: time.Hour, Format: "%dm %s", DivBy: time.Minute},
	{D: 24 * time.Hour, Format: "%dh %s", DivBy: time.Hour},
	{D: 7 * 24 * time.Hour, Format: "%dd %s", DivBy: 24 * time.Hour},
}

var countdownMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "expires in %ds", DivBy: time.Second},
	{D: time.Hour, Format: "expires in %dm", DivBy: time.Minute},
}

// RelativeTime renders how long ago t was. Times in the future read as "just now".
func RelativeTime(t, now time.Time) string {
	if t.After(now) {
		t = now
	}
	if now.Sub(t) < 7*24*time.Hour {
		return humanize.CustomRelTime(t, now, "ago", "", relMagnitudes)
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2, 2006")
}

// Countdown renders the time left until t, never less than one second. Units are truncated, so
// a label never claims more time than is left.
func Countdown(t, now time.Time) string {
	d := t.Sub(now).Truncate(time.Second)
	if d < time.Second {
		d = time.Second
	}
	switch {
	case d < time.Hour:
		return humanize.CustomRelTime(now.Add(d), now, "", "", countdownMagnitudes)
	case d < 24*time.Hour:
		return fmt.Sprintf("expires in %dh %02dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
	default:
		return fmt.Sprintf("expires in %dd %dh", int(d/(24*time.Hour)), int(d%(24*time.Hour)/time.Hour))
	}
}

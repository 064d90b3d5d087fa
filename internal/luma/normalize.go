package luma

import (
	"strings"
	"time"

	"github.com/smyja/web3event/internal/domain"
)

const displayLayout = "2006-01-02 15:04"

// Normalize builds the flat event from a card and, when it was fetched,
// the event page detail.
func Normalize(card Card, d *Detail) domain.NormalizedEvent {
	ev := domain.NormalizedEvent{
		Title:      card.Title,
		Summary:    strings.Join(card.Tags, ", "),
		Organizers: []string{},
		Addr:       domain.Address{LocalAddr: ", "},
		Ticket:     domain.TicketNotAvailable,
		Href:       card.Href,
	}
	if d == nil {
		return ev
	}

	ev.Image = d.Image
	ev.Description = d.Description
	if len(d.Organizers) > 0 {
		ev.Organizers = append([]string(nil), d.Organizers...)
	}
	ev.Time = timeRange(d.StartDate, d.EndDate)
	ev.Addr = domain.Address{StreetAddr: d.Street, LocalAddr: d.Locality + ", " + d.Region}
	ev.IsFree = d.IsFree
	switch {
	case d.IsFree:
		ev.Ticket = domain.TicketFree
	case d.Price != "":
		ev.Ticket = d.Price
	}
	return ev
}

func timeRange(start, end string) string {
	if start == "" {
		return ""
	}
	s := displayTime(start)
	if end == "" {
		return s
	}
	return s + " - " + displayTime(end)
}

// displayTime renders an ISO timestamp in local wall time of the event.
// Unparseable values are returned unchanged.
func displayTime(v string) string {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return v
	}
	return t.Format(displayLayout)
}

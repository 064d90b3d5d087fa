package eventbrite

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/smyja/web3event/internal/domain"
)

// Normalize maps a detail API record to the flat event schema. It never
// fails: missing or mistyped fields fall back to empty values.
func Normalize(raw domain.RawEvent) domain.NormalizedEvent {
	ev := gjson.ParseBytes(raw)

	return domain.NormalizedEvent{
		Image:      ev.Get("image.url").String(),
		Title:      ev.Get("name").String(),
		Summary:    ev.Get("summary").String(),
		Organizers: organizers(ev.Get("primary_organizer")),
		Time:       timeRange(ev),
		Addr: domain.Address{
			StreetAddr: ev.Get("primary_venue.address.address_1").String(),
			LocalAddr:  ev.Get("primary_venue.address.city").String() + ", " + ev.Get("primary_venue.address.region").String(),
		},
		Description: "",
		IsFree:      ev.Get("ticket_availability.is_free").Bool(),
		Ticket:      ticket(ev.Get("ticket_availability")),
		Href:        ev.Get("url").String(),
	}
}

// NormalizeAll normalizes records in order.
func NormalizeAll(raws []domain.RawEvent) []domain.NormalizedEvent {
	out := make([]domain.NormalizedEvent, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

func organizers(org gjson.Result) []string {
	if !org.IsObject() || len(org.Map()) == 0 {
		return []string{}
	}
	return []string{org.Get("name").String()}
}

func timeRange(ev gjson.Result) string {
	startDate, startTime := ev.Get("start_date").String(), ev.Get("start_time").String()
	if startDate == "" || startTime == "" {
		return ""
	}
	s := startDate + " " + startTime
	endDate, endTime := ev.Get("end_date").String(), ev.Get("end_time").String()
	if endDate != "" && endTime != "" {
		return s + " - " + endDate + " " + endTime
	}
	return s
}

func ticket(avail gjson.Result) string {
	if avail.Get("is_sold_out").Bool() {
		return domain.TicketSoldOut
	}
	if avail.Get("is_free").Bool() {
		return domain.TicketFree
	}
	minPrice := strings.TrimSpace(avail.Get("minimum_ticket_price.display").String())
	maxPrice := strings.TrimSpace(avail.Get("maximum_ticket_price.display").String())
	switch {
	case minPrice == "" || maxPrice == "":
		return domain.TicketNotAvailable
	case minPrice == maxPrice:
		return minPrice
	default:
		return minPrice + domain.TicketPriceSeparator + maxPrice
	}
}

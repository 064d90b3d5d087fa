package domain

import "encoding/json"

// RawEvent is an event record exactly as returned by a provider. No schema is
// guaranteed; every field may be absent.
type RawEvent = json.RawMessage

// CapturedRequest is one outbound request observed while a page loaded.
type CapturedRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

type Address struct {
	StreetAddr string `json:"street_addr"`
	LocalAddr  string `json:"local_addr"`
}

// NormalizedEvent is the flat detail record written to processed output.
// Every field is always present.
type NormalizedEvent struct {
	Image       string   `json:"image"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Organizers  []string `json:"organizers"`
	Time        string   `json:"time"`
	Addr        Address  `json:"addr"`
	Description string   `json:"description"`
	IsFree      bool     `json:"isFree"`
	Ticket      string   `json:"ticket"`
	Href        string   `json:"href"`
}

// Ticket display values.
const (
	TicketSoldOut        = "sold out"
	TicketFree           = "Free"
	TicketNotAvailable   = "Price not available"
	TicketPriceSeparator = " - "
)

package eventbrite

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/smyja/web3event/internal/domain"
)

const destinationEventsPath = "api/v3/destination/events/"

var eventIDsPattern = regexp.MustCompile(`event_ids=([^&]+)`)

// ExtractEventIDs returns the event ids carried by the first destination
// events request. Later matching requests are ignored. An empty result means
// the page has no more events.
func ExtractEventIDs(requests []domain.CapturedRequest) []string {
	for _, req := range requests {
		if !strings.Contains(req.URL, destinationEventsPath) {
			continue
		}
		m := eventIDsPattern.FindStringSubmatch(req.URL)
		if m == nil {
			continue
		}
		value := m[1]
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		return splitIDs(value)
	}
	return []string{}
}

func splitIDs(s string) []string {
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

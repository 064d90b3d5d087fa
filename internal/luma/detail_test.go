package luma

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const eventPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Luma"}</script>
<script type="application/ld+json">[{
  "@context": "https://schema.org",
  "@type": "Event",
  "name": "ETH NYC Builders Night",
  "description": "Demos and drinks",
  "startDate": "2024-09-12T18:00:00-04:00",
  "endDate": "2024-09-12T21:00:00-04:00",
  "image": ["https://images.lumacdn.com/1.png"],
  "location": {"@type": "Place", "address": {"streetAddress": "1 Main St", "addressLocality": "New York", "addressRegion": "NY"}},
  "organizer": [{"name": "ETH NYC"}, {"name": "Builders DAO"}],
  "offers": [{"price": 0, "priceCurrency": "USD"}]
}]</script>
</head><body></body></html>`

func TestParseDetail(t *testing.T) {
	got, err := ParseDetail(eventPage)
	require.NoError(t, err)

	want := Detail{
		Image:       "https://images.lumacdn.com/1.png",
		Description: "Demos and drinks",
		StartDate:   "2024-09-12T18:00:00-04:00",
		EndDate:     "2024-09-12T21:00:00-04:00",
		Street:      "1 Main St",
		Locality:    "New York",
		Region:      "NY",
		Organizers:  []string{"ETH NYC", "Builders DAO"},
		IsFree:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDetail() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDetail_PaidSingleOrganizer(t *testing.T) {
	page := `<script type="application/ld+json">{"@type":"Event","organizer":{"name":"Solana NYC"},"offers":{"price":"25","priceCurrency":"USD"}}</script>`

	got, err := ParseDetail(page)
	require.NoError(t, err)
	require.Equal(t, []string{"Solana NYC"}, got.Organizers)
	require.False(t, got.IsFree)
	require.Equal(t, "USD 25", got.Price)
}

func TestParseDetail_NoStructuredData(t *testing.T) {
	_, err := ParseDetail(`<html><body>nothing</body></html>`)
	require.Error(t, err)
}

func TestParseDetail_OpenGraphFallback(t *testing.T) {
	page := `<html><head>
<meta property="og:image" content="https://images.lumacdn.com/og.png">
<meta property="og:description" content="Monthly ZK study group">
</head><body></body></html>`

	got, err := ParseDetail(page)
	require.NoError(t, err)
	require.Equal(t, Detail{Image: "https://images.lumacdn.com/og.png", Description: "Monthly ZK study group"}, got)

	// JSON-LD wins, OpenGraph only fills gaps.
	page = `<meta property="og:image" content="https://images.lumacdn.com/og.png">
<meta property="og:description" content="og text">
<script type="application/ld+json">{"@type":"Event","description":"ld text"}</script>`
	got, err = ParseDetail(page)
	require.NoError(t, err)
	require.Equal(t, "ld text", got.Description)
	require.Equal(t, "https://images.lumacdn.com/og.png", got.Image)
}

func TestDetailClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(eventPage))
	}))
	defer srv.Close()

	c := NewDetailClient(0, "test-agent")

	got, err := c.Fetch(context.Background(), srv.URL+"/eth-nyc")
	require.NoError(t, err)
	require.Equal(t, "Demos and drinks", got.Description)

	_, err = c.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

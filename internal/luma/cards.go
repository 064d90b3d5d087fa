// Package luma scrapes Luma city pages. Unlike Eventbrite there is no
// internal API to intercept: event cards are read from the rendered page and
// kept when their title mentions a web3 keyword.
package luma

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Card is one event card from a city page.
type Card struct {
	Href  string   `json:"href"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// ElementLookupError reports a card missing an expected element. It is
// logged and the card skipped.
type ElementLookupError struct {
	Index    int
	Selector string
}

func (e *ElementLookupError) Error() string {
	return fmt.Sprintf("card %d: unable to locate %s", e.Index, e.Selector)
}

// ParseCards extracts every card from a rendered page. Relative links are
// resolved against base.
func ParseCards(html string, base *url.URL) ([]Card, []error, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse page: %w", err)
	}

	var (
		cards []Card
		errs  []error
	)
	doc.Find("div.card-wrapper").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Find("a.event-link").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			errs = append(errs, &ElementLookupError{Index: i, Selector: "a.event-link"})
			return
		}
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			errs = append(errs, &ElementLookupError{Index: i, Selector: "h3"})
			return
		}

		tags := []string{}
		s.Find(".pill-label").Each(func(_ int, p *goquery.Selection) {
			if t := strings.TrimSpace(p.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		cards = append(cards, Card{
			Href:  resolve(base, strings.TrimSpace(href)),
			Title: title,
			Tags:  tags,
		})
	})
	return cards, errs, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// MatchesKeywords reports whether title contains any keyword,
// case-insensitively.
func MatchesKeywords(title string, keywords []string) bool {
	t := strings.ToLower(title)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(t, k) {
			return true
		}
	}
	return false
}

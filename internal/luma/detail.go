package luma

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const defaultDetailTimeout = 30 * time.Second

// Detail is what an event page's JSON-LD block tells us.
type Detail struct {
	Image       string   `json:"image,omitempty"`
	Description string   `json:"description,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Street      string   `json:"street,omitempty"`
	Locality    string   `json:"locality,omitempty"`
	Region      string   `json:"region,omitempty"`
	Organizers  []string `json:"organizers,omitempty"`
	IsFree      bool     `json:"is_free,omitempty"`
	Price       string   `json:"price,omitempty"`
}

// DetailClient downloads event pages and reads their structured data.
type DetailClient struct {
	client *resty.Client
}

func NewDetailClient(timeout time.Duration, userAgent string) *DetailClient {
	if timeout <= 0 {
		timeout = defaultDetailTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &DetailClient{client: client}
}

func (c *DetailClient) Fetch(ctx context.Context, href string) (Detail, error) {
	res, err := c.client.R().SetContext(ctx).Get(href)
	if err != nil {
		return Detail{}, fmt.Errorf("fetch %s: %w", href, err)
	}
	if res.IsError() {
		return Detail{}, fmt.Errorf("fetch %s: unexpected status %d", href, res.StatusCode())
	}
	return ParseDetail(string(res.Body()))
}

// ParseDetail reads the first schema.org Event JSON-LD block of a page.
// OpenGraph tags fill in the image and description when the block lacks them
// or the page has no block at all.
func ParseDetail(html string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, fmt.Errorf("parse event page: %w", err)
	}

	var ld gjson.Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		r := gjson.Parse(s.Text())
		candidates := []gjson.Result{r}
		if r.IsArray() {
			candidates = r.Array()
		}
		for _, c := range candidates {
			if isEvent(c) {
				ld = c
				return false
			}
		}
		return true
	})
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(html)); err != nil {
		og = opengraph.NewOpenGraph()
	}
	ogImage := ""
	if len(og.Images) > 0 && og.Images[0] != nil {
		ogImage = og.Images[0].URL
	}

	if !ld.Exists() {
		if ogImage == "" && og.Description == "" {
			return Detail{}, fmt.Errorf("no event structured data")
		}
		return Detail{Image: ogImage, Description: og.Description}, nil
	}

	d := Detail{
		Description: ld.Get("description").String(),
		StartDate:   ld.Get("startDate").String(),
		EndDate:     ld.Get("endDate").String(),
		Street:      ld.Get("location.address.streetAddress").String(),
		Locality:    ld.Get("location.address.addressLocality").String(),
		Region:      ld.Get("location.address.addressRegion").String(),
		IsFree:      ld.Get("isAccessibleForFree").Bool(),
	}

	img := ld.Get("image")
	if img.IsArray() {
		img = img.Get("0")
	}
	d.Image = img.String()
	if d.Image == "" {
		d.Image = ogImage
	}
	if d.Description == "" {
		d.Description = og.Description
	}

	org := ld.Get("organizer")
	if org.IsArray() {
		org.ForEach(func(_, o gjson.Result) bool {
			if name := o.Get("name").String(); name != "" {
				d.Organizers = append(d.Organizers, name)
			}
			return true
		})
	} else if name := org.Get("name").String(); name != "" {
		d.Organizers = []string{name}
	}

	offer := ld.Get("offers")
	if offer.IsArray() {
		offer = offer.Get("0")
	}
	if price := offer.Get("price"); price.Exists() {
		if price.Float() == 0 {
			d.IsFree = true
		} else {
			d.Price = strings.TrimSpace(offer.Get("priceCurrency").String() + " " + price.String())
		}
	}
	return d, nil
}

// isEvent checks @type via Map since gjson treats a leading @ in a path as a
// modifier.
func isEvent(r gjson.Result) bool {
	if !r.IsObject() {
		return false
	}
	return r.Map()["@type"].String() == "Event"
}

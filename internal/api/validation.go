package api

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/smyja/web3event/internal/domain"
)

// maxTags bounds how many tags a single job may crawl.
const maxTags = 50

var errInvalidCity = errors.New("invalid city")

func validateCreateJob(req CreateJobRequest, catalog domain.Catalog) error {
	if req.City == "" {
		return fmt.Errorf("city is required")
	}
	city, ok := catalog.City(req.City)
	if !ok {
		return errInvalidCity
	}

	provider := domain.Provider(req.Provider)
	if req.Provider != "" && !provider.Valid() {
		return fmt.Errorf("invalid provider %q", req.Provider)
	}
	if provider == domain.ProviderLuma && city.LumaSlug == "" {
		return fmt.Errorf("city %s is not available on luma", req.City)
	}

	if len(req.Tags) > maxTags {
		return fmt.Errorf("too many tags (max %d)", maxTags)
	}
	for _, tag := range req.Tags {
		if err := validateTag(tag); err != nil {
			return fmt.Errorf("invalid tag %q: %w", tag, err)
		}
	}

	if req.CallbackURL != "" {
		if err := validateCallbackURL(req.CallbackURL); err != nil {
			return fmt.Errorf("invalid callback_url: %w", err)
		}
	}

	return nil
}

// validateTag rejects tags that cannot be a single listing path segment.
func validateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return fmt.Errorf("empty")
	}
	if strings.ContainsAny(tag, "/?#") {
		return fmt.Errorf("must not contain '/', '?' or '#'")
	}
	return nil
}

func validateCallbackURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

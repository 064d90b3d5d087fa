package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/eventbrite"
	"github.com/smyja/web3event/internal/luma"
	"github.com/smyja/web3event/internal/output"
	"github.com/smyja/web3event/internal/source"
)

type scrapeOptions struct {
	city       string
	tags       []string
	provider   string
	out        string
	headless   bool
	chromePath string
	settle     time.Duration
	pageDelay  time.Duration
	timeout    time.Duration
}

// newSource is replaced in tests.
var newSource = func(opts *scrapeOptions, catalog domain.Catalog) (source.Source, error) {
	browsers := browser.NewChromeFactory(browser.Options{
		Headless: opts.headless,
		ExecPath: opts.chromePath,
	})
	switch domain.Provider(opts.provider) {
	case domain.ProviderEventbrite:
		return eventbrite.NewSource(browsers, eventbrite.NewDetailClient(opts.timeout), eventbrite.Options{
			SettleDelay: opts.settle,
			PageDelay:   opts.pageDelay,
		}), nil
	case domain.ProviderLuma:
		return luma.NewSource(browsers, catalog, luma.Options{
			SettleDelay: opts.settle,
			DetailDelay: opts.pageDelay,
		}).
			WithDetails(luma.NewDetailClient(opts.timeout, browser.DefaultUserAgent)), nil
	}
	return nil, fmt.Errorf("%w: %q", source.ErrUnknownProvider, opts.provider)
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape --city <id> [--tags a,b] [--provider eventbrite|luma] [--out <dir>]",
		Short: "Scrapes one city and writes the raw and processed event files.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.city, "city", "", "City ID, see the cities command")
	flags.StringSliceVar(&opts.tags, "tags", nil, "Tags to search (default: catalog tags for eventbrite, none for luma)")
	flags.StringVar(&opts.provider, "provider", string(domain.ProviderEventbrite), "eventbrite or luma")
	flags.StringVar(&opts.out, "out", output.DefaultDir, "Directory for the event files")
	flags.BoolVar(&opts.headless, "headless", true, "Run Chrome headless")
	flags.StringVar(&opts.chromePath, "chrome", "", "Chrome binary (default: autodetect)")
	flags.DurationVar(&opts.settle, "settle", eventbrite.DefaultSettleDelay, "Wait after each page load")
	flags.DurationVar(&opts.pageDelay, "page-delay", eventbrite.DefaultPageDelay, "Pause between listing pages or event page fetches")
	flags.DurationVar(&opts.timeout, "fetch-timeout", 30*time.Second, "Event detail request timeout")
	_ = cmd.MarkFlagRequired("city")

	return cmd
}

func runScrape(cmd *cobra.Command, root *rootOptions, opts *scrapeOptions) error {
	log := root.logger(cmd)

	catalog, err := root.loadCatalog()
	if err != nil {
		return err
	}
	provider := domain.Provider(opts.provider)
	if !provider.Valid() {
		return fmt.Errorf("invalid provider %q", opts.provider)
	}
	city, ok := catalog.City(opts.city)
	if !ok {
		return fmt.Errorf("invalid city %q", opts.city)
	}
	if provider == domain.ProviderLuma && city.LumaSlug == "" {
		return fmt.Errorf("city %s is not available on luma", city.ID)
	}
	tags := opts.tags
	if len(tags) == 0 {
		tags = catalog.DefaultTags(provider)
	}

	src, err := newSource(opts, catalog)
	if err != nil {
		return err
	}

	job := domain.ScrapeJob{
		ID:        uuid.New(),
		Provider:  provider,
		City:      city.ID,
		Tags:      tags,
		Status:    domain.JobStatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
	log = log.With().Str("job_id", job.ID.String()).Str("city", job.City).Logger()

	start := time.Now()
	res, scrapeErr := src.Scrape(cmd.Context(), job, source.NewLogReporter(log))
	if scrapeErr != nil {
		if cmd.Context().Err() != nil {
			return fmt.Errorf("scrape interrupted: %w", scrapeErr)
		}
		return fmt.Errorf("scrape failed after %d events: %w", len(res.Events), scrapeErr)
	}

	paths, err := output.NewFileSink(opts.out).Write(provider, city.ID, res.Raw, res.Events)
	if err != nil {
		return err
	}

	log.Info().
		Int("events", len(res.Events)).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("scrape completed")
	out := cmd.OutOrStdout()
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

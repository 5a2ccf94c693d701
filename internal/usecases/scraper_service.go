package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog"

	"taiyari/internal/entities"
	"taiyari/internal/interfaces"
	"taiyari/internal/logging"
	"taiyari/internal/metrics"
)

var ErrNoSourceURL = errors.New("tenant has no auto-update url")

const refreshAllLockKey = "scraper:lock:refresh-all"

type ScraperOptions struct {
	Pacing   time.Duration // idle time between the end of one tenant refresh and the start of the next
	Interval time.Duration
	Cron     string // overrides Interval when set
	LockTTL  time.Duration
}

// RefreshSummary counts the outcome of one refresh cycle.
type RefreshSummary struct {
	Eligible  int
	Refreshed int
	Failed    int
	Skipped   bool // another replica holds the cycle lock
}

// ScraperService keeps auto-refresh tenants in sync with their source page.
type ScraperService struct {
	tenants   interfaces.TenantStore
	knowledge *KnowledgeService
	fetcher   interfaces.PageFetcher
	extractor *Extractor
	locker    interfaces.Locker
	opts      ScraperOptions
	cron      *cronexpr.Expression
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewScraperService builds the scheduler. locker may be nil for a single
// replica deployment.
func NewScraperService(
	tenants interfaces.TenantStore,
	knowledge *KnowledgeService,
	fetcher interfaces.PageFetcher,
	extractor *Extractor,
	locker interfaces.Locker,
	opts ScraperOptions,
	log zerolog.Logger,
	m *metrics.Metrics,
) (*ScraperService, error) {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if m == nil {
		m = metrics.Noop()
	}

	s := &ScraperService{
		tenants:   tenants,
		knowledge: knowledge,
		fetcher:   fetcher,
		extractor: extractor,
		locker:    locker,
		opts:      opts,
		log:       logging.Component(log, "scraper"),
		metrics:   m,
	}
	if opts.Cron != "" {
		expr, err := cronexpr.Parse(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse refresh cron %q: %w", opts.Cron, err)
		}
		s.cron = expr
	}
	return s, nil
}

// RefreshOne fetches url, extracts it in mode and stores the result as
// auto-scraped knowledge. On any failure the stored record is left as is.
func (s *ScraperService) RefreshOne(ctx context.Context, tenantID, url string, mode entities.ExtractionMode) error {
	log := s.log.With().Str("tenant_id", tenantID).Str("url", url).Str("mode", string(mode)).Logger()

	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.metrics.RecordScrape(metrics.ScrapeFetchFailed)
		log.Warn().Err(err).Msg("fetch failed, keeping existing knowledge")
		return fmt.Errorf("refresh %s: %w", tenantID, err)
	}

	out, err := s.extractor.Extract(body, url, mode)
	if err != nil {
		s.metrics.RecordScrape(metrics.ScrapeEmpty)
		log.Warn().Err(err).Msg("extraction failed, keeping existing knowledge")
		return fmt.Errorf("refresh %s: %w", tenantID, err)
	}

	update := entities.KnowledgeUpdate{
		Content:       &out.Content,
		AutoUpdateURL: &url,
	}
	if out.Title != "" {
		update.SourceTitle = &out.Title
	}
	// The structured lists always follow the latest extraction, so a mode
	// switch clears what the previous mode produced.
	links, products := out.Links, out.Products
	if links == nil {
		links = []entities.Link{}
	}
	if products == nil {
		products = []entities.Product{}
	}
	update.Links = &links
	update.Products = &products

	if _, err := s.knowledge.Put(ctx, tenantID, update, entities.SourceAutoScraping); err != nil {
		s.metrics.RecordScrape(metrics.ScrapeStoreFailed)
		log.Error().Err(err).Msg("store failed")
		return fmt.Errorf("refresh %s: %w", tenantID, err)
	}

	s.metrics.RecordScrape(metrics.ScrapeOK)
	log.Info().Int("chars", len([]rune(out.Content))).Msg("knowledge refreshed")
	return nil
}

// RefreshTenant refreshes a tenant from its configured url and mode.
func (s *ScraperService) RefreshTenant(ctx context.Context, tenantID string) error {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Knowledge.AutoUpdateURL == "" {
		return fmt.Errorf("refresh %s: %w", tenantID, ErrNoSourceURL)
	}
	return s.RefreshOne(ctx, tenantID, t.Knowledge.AutoUpdateURL, entities.ParseExtractionMode(string(t.Knowledge.ScrapeType)))
}

// RefreshAll refreshes every eligible tenant, one at a time and paced.
// A failing tenant is logged and counted; it never stops the cycle.
func (s *ScraperService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	var summary RefreshSummary
	start := time.Now()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, refreshAllLockKey, s.opts.LockTTL)
		if err != nil {
			return summary, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			s.log.Info().Msg("refresh cycle already running elsewhere, skipping")
			summary.Skipped = true
			return summary, nil
		}
		defer release()
	}

	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list tenants: %w", err)
	}

	for _, t := range tenants {
		if !t.Knowledge.AutoRefreshEligible() {
			continue
		}
		if summary.Eligible > 0 {
			if err := s.pause(ctx); err != nil {
				return summary, err
			}
		}
		summary.Eligible++

		mode := entities.ParseExtractionMode(string(t.Knowledge.ScrapeType))
		if err := s.RefreshOne(ctx, t.ID, t.Knowledge.AutoUpdateURL, mode); err != nil {
			summary.Failed++
			continue
		}
		summary.Refreshed++
	}

	s.metrics.RecordRefreshCycle(start)
	s.log.Info().
		Int("eligible", summary.Eligible).
		Int("refreshed", summary.Refreshed).
		Int("failed", summary.Failed).
		Dur("took", time.Since(start)).
		Msg("refresh cycle done")
	return summary, nil
}

// pause waits out the pacing delay after a tenant refresh.
func (s *ScraperService) pause(ctx context.Context) error {
	if s.opts.Pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.opts.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes a cycle immediately, then on every tick until ctx is done.
func (s *ScraperService) Run(ctx context.Context) {
	for {
		if _, err := s.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("refresh cycle failed")
		}

		next := s.nextRun(time.Now())
		s.log.Debug().Time("next_run", next).Msg("refresh scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *ScraperService) nextRun(now time.Time) time.Time {
	if s.cron != nil {
		if next := s.cron.Next(now); !next.IsZero() {
			return next
		}
	}
	return now.Add(s.opts.Interval)
}

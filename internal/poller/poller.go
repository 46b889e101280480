package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"carpark-vacancy-backend/config"
	"carpark-vacancy-backend/internal/adapter"
	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/notify"
	"carpark-vacancy-backend/internal/registry"
	"carpark-vacancy-backend/internal/store"
)

// boundProvider pairs one configured upstream with its adapter.
type boundProvider struct {
	cfg config.ProviderConfig
	ad  adapter.Adapter
}

// Service owns upstream transport and drives ingestion cycles. The
// normalization core never fetches; this is the only place HTTP happens.
type Service struct {
	cfg       *config.Config
	store     store.Store
	client    *http.Client
	loc       *time.Location
	providers []boundProvider
	pool      *notify.WorkerPool
}

// NewService creates and initializes the poller.
func NewService(cfg *config.Config, st store.Store) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Poller.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Poller.Timezone, err)
	}

	var transport http.RoundTripper = &http.Transport{}
	if cfg.Poller.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.Poller.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Poller will not use a proxy.", cfg.Poller.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	providers := make([]boundProvider, 0, len(cfg.Poller.Providers))
	for _, p := range cfg.Poller.Providers {
		ad, err := adapter.ForProvider(p.Adapter, loc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}
		providers = append(providers, boundProvider{cfg: p, ad: ad})
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:   cfg,
		store: st,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		loc:       loc,
		providers: providers,
		pool:      notify.NewWorkerPool(cfg.WorkerPool.Size, st.DB(), &webpushOptions),
	}, nil
}

// Location returns the canonical timezone for day partitioning and hour
// bucketing.
func (s *Service) Location() *time.Location {
	return s.loc
}

// StartWorkers launches the alert worker pool. It must be called before any
// ingestion cycle that should dispatch alerts.
func (s *Service) StartWorkers(ctx context.Context) {
	s.pool.Start(ctx)
}

// Run starts the ingestion loop: one immediate cycle, then one per interval
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Poller.Enabled {
		log.Println("Poller is disabled. Not starting.")
		return
	}
	log.Println("Starting poller service...")

	s.StartWorkers(ctx)

	if err := s.PollOnce(ctx); err != nil {
		log.Printf("Ingestion cycle failed: %v", err)
	}

	timer := time.NewTimer(s.cfg.Poller.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Poller service shutting down.")
			return
		case <-timer.C:
			if err := s.PollOnce(ctx); err != nil {
				log.Printf("Ingestion cycle failed: %v", err)
			}
			timer.Reset(s.cfg.Poller.Interval)
		}
	}
}

// runReport tallies one ingestion cycle.
type runReport struct {
	received     int
	appended     int
	duplicates   int
	unregistered int
	skipped      map[string]int
	failed       int
}

func (r *runReport) merge(b adapter.Batch) {
	r.received += len(b.Snapshots)
	r.unregistered += b.Unregistered
	for reason, n := range b.Skipped {
		if r.skipped == nil {
			r.skipped = make(map[string]int)
		}
		r.skipped[reason] += n
	}
}

// PollOnce performs a single ingestion cycle across every configured
// provider. One provider failing does not abort the others; the cycle as a
// whole fails only when no provider produced a usable payload.
func (s *Service) PollOnce(ctx context.Context) error {
	log.Println("Executing ingestion cycle...")
	capturedAt := time.Now().In(s.loc)

	carparks, err := s.store.Carparks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	reg := registry.New(carparks)

	// Latest records before this cycle, for alert transition detection.
	prevLatest, err := s.store.LatestSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest snapshots: %w", err)
	}

	var report runReport
	for _, p := range s.providers {
		payload, err := s.fetch(ctx, p.cfg)
		if err != nil {
			log.Printf("Error fetching provider %s: %v", p.cfg.Name, err)
			report.failed++
			continue
		}

		batch, err := p.ad.Normalize(payload, capturedAt, reg)
		if err != nil {
			log.Printf("Error normalizing provider %s payload: %v", p.cfg.Name, err)
			report.failed++
			continue
		}
		report.merge(batch)

		inserted, err := s.store.AppendSnapshots(ctx, batch.Snapshots)
		if err != nil {
			return fmt.Errorf("failed to append snapshots from %s: %w", p.cfg.Name, err)
		}
		report.appended += inserted
		report.duplicates += len(batch.Snapshots) - inserted
	}

	log.Printf("Ingestion cycle finished: received=%d appended=%d duplicates=%d unregistered=%d skipped=%v failed_providers=%d",
		report.received, report.appended, report.duplicates, report.unregistered, report.skipped, report.failed)

	if len(s.providers) > 0 && report.failed == len(s.providers) {
		return fmt.Errorf("all %d providers failed", report.failed)
	}

	s.dispatchAlerts(ctx, prevLatest)
	return nil
}

// dispatchAlerts hands carparks that came back from full to the worker pool.
func (s *Service) dispatchAlerts(ctx context.Context, prevLatest map[string]model.Snapshot) {
	curLatest, err := s.store.LatestSnapshots(ctx)
	if err != nil {
		log.Printf("Error reading latest snapshots for alerts: %v", err)
		return
	}

	transitions := notify.Transitions(prevLatest, curLatest)
	if len(transitions) == 0 {
		return
	}
	log.Printf("Dispatching alerts for %d carparks", len(transitions))
	for _, id := range transitions {
		s.pool.Dispatch(id)
	}
}

// fetch performs one provider request: a plain GET, or a POST when the
// provider config carries a JSON payload.
func (s *Service) fetch(ctx context.Context, p config.ProviderConfig) ([]byte, error) {
	var req *http.Request
	var err error

	if len(p.Payload) > 0 {
		jsonBody, merr := json.Marshal(p.Payload)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewBuffer(jsonBody))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range p.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// RefreshRegistry reloads carpark metadata wholesale: from the configured
// seed CSV when present, otherwise from the provider info endpoint. It is
// only invoked explicitly, never as part of an ingestion cycle.
func (s *Service) RefreshRegistry(ctx context.Context) error {
	regCfg := s.cfg.Poller.Registry

	switch {
	case regCfg.SeedCSV != "":
		f, err := os.Open(regCfg.SeedCSV)
		if err != nil {
			return fmt.Errorf("failed to open registry seed %s: %w", regCfg.SeedCSV, err)
		}
		defer f.Close()

		carparks, report, err := registry.FromCSV(f)
		if err != nil {
			return fmt.Errorf("failed to load registry seed: %w", err)
		}
		log.Printf("Registry seed loaded: %d carparks, skipped=%v", report.Loaded, report.Skipped)
		return s.store.UpsertCarparks(ctx, carparks)

	case regCfg.InfoURL != "":
		payload, err := s.fetch(ctx, config.ProviderConfig{URL: regCfg.InfoURL})
		if err != nil {
			return fmt.Errorf("failed to fetch registry info: %w", err)
		}

		carparks, report, err := registry.FromInfoPayload(payload)
		if err != nil {
			return fmt.Errorf("failed to normalize registry info: %w", err)
		}
		log.Printf("Registry info loaded: %d carparks, skipped=%v", report.Loaded, report.Skipped)
		return s.store.UpsertCarparks(ctx, carparks)

	default:
		return fmt.Errorf("no registry source configured")
	}
}

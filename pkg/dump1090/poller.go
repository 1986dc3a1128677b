// Package dump1090 polls the dump1090 JSON endpoint for aircraft
// metadata. The SBS stream carries positions but thin identity; the
// JSON side fills in callsign, emitter category and type designator.
package dump1090

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aprs-bridge/pkg/types"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 10 << 20

	// A hex absent from the feed this long falls out of the cache.
	cacheTTL = 5 * time.Minute

	// Continued failure is re-logged this often, not every tick.
	statusRelogAfter = 60 * time.Second
)

// record is one aircraft row. dump1090 forks disagree on key names, so
// the alternates are all declared and coalesced after parsing.
type record struct {
	Hex          string `json:"hex"`
	Category     string `json:"category"`
	Type         string `json:"type"`
	T            string `json:"t"`
	Flight       string `json:"flight"`
	Call         string `json:"call"`
	FlightNumber string `json:"flightnumber"`
}

// meta is the cached identity of one hex with its freshness stamp.
type meta struct {
	callsign string
	category string
	acType   string
	seen     time.Time
}

// Poller fetches the JSON endpoint on a fixed interval into a metadata
// cache. SBS updates are enriched from the cache on their way to the
// flight tracker.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *log.Logger

	mu      sync.RWMutex
	cache   map[string]meta
	healthy bool
	lastLog time.Time

	now func() time.Time
}

// NewPoller creates a poller for a dump1090 JSON URL, typically
// http://host:8080/data/aircraft.json or the older /data.json.
func NewPoller(url string, interval time.Duration, logger *log.Logger) *Poller {
	return &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: requestTimeout},
		log:      logger,
		cache:    make(map[string]meta),
		healthy:  true,
		now:      time.Now,
	}
}

// Run polls until the context is canceled. Fetch and parse failures
// are logged and retried next tick, never fatal.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// poll performs one fetch/parse/cache cycle. Hexes absent from the
// feed age out of the cache; a failed poll prunes nothing.
func (p *Poller) poll(ctx context.Context) {
	recs, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.setHealthy(false, err)
		}
		return
	}
	p.setHealthy(true, nil)

	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range recs {
		hex := strings.ToUpper(strings.TrimSpace(rec.Hex))
		if hex == "" {
			continue
		}
		p.cache[hex] = meta{
			callsign: strings.TrimSpace(firstOf(rec.Flight, rec.Call, rec.FlightNumber)),
			category: strings.TrimSpace(rec.Category),
			acType:   strings.TrimSpace(firstOf(rec.Type, rec.T)),
			seen:     now,
		}
	}
	for hex, m := range p.cache {
		if now.Sub(m.seen) > cacheTTL {
			delete(p.cache, hex)
		}
	}
}

// Enrich fills identity fields the update is missing from the cached
// metadata for its hex. Fields the SBS stream already supplied win.
func (p *Poller) Enrich(ac types.Aircraft) types.Aircraft {
	p.mu.RLock()
	m, ok := p.cache[strings.ToUpper(ac.ICAO)]
	p.mu.RUnlock()
	if !ok {
		return ac
	}
	if !ac.HasCallsign && m.callsign != "" {
		ac.Callsign = strings.ToUpper(m.callsign)
		ac.HasCallsign = true
	}
	if !ac.HasCategory && m.category != "" {
		ac.Category = m.category
		ac.HasCategory = true
	}
	if !ac.HasType && m.acType != "" {
		ac.AcType = m.acType
		ac.HasType = true
	}
	return ac
}

// fetch GETs the endpoint and parses either body shape.
func (p *Poller) fetch(ctx context.Context) ([]record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return parseBody(body)
}

// parseBody accepts both the wrapped {"aircraft":[...]} shape and the
// older bare-list data.json shape.
func parseBody(body []byte) ([]record, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var recs []record
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, fmt.Errorf("parse aircraft list: %w", err)
		}
		return recs, nil
	}

	var wrapper struct {
		Aircraft []record `json:"aircraft"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("parse aircraft json: %w", err)
	}
	return wrapper.Aircraft, nil
}

// setHealthy tracks the ok/fail state, logging transitions and capping
// repeated failure logs.
func (p *Poller) setHealthy(ok bool, cause error) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case ok && !p.healthy:
		p.log.Info("json feed ok", "url", p.url)
	case !ok && p.healthy:
		p.log.Info("json feed failed", "url", p.url, "err", cause)
	case !ok && now.Sub(p.lastLog) < statusRelogAfter:
		p.healthy = ok
		return
	case !ok:
		p.log.Info("json feed still failing", "url", p.url, "err", cause)
	default:
		p.healthy = ok
		return
	}
	p.healthy = ok
	p.lastLog = now
}

// Healthy reports whether the last poll succeeded.
func (p *Poller) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

// Count returns the number of hexes with cached metadata.
func (p *Poller) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

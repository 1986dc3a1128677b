// Package flights tracks aircraft near the home position and mirrors
// them to APRS-IS as objects. Records move through a small lifecycle:
// created inside the add radius, withdrawn while landed, deleted once
// they leave the clear radius or go silent.
package flights

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aprs-bridge/pkg/aprs"
	"aprs-bridge/pkg/geo"
	"aprs-bridge/pkg/types"
)

// Sender delivers finished APRS information fields to the uplink.
type Sender interface {
	Send(info string) error
}

const (
	// An aircraft becomes an object inside 35 mi and is deleted beyond
	// 40 mi; the gap keeps boundary riders from flapping.
	defaultAddDistanceMi   = 35.0
	defaultClearDistanceMi = 40.0

	// Silence long enough to delete the object.
	defaultObjectTTL = 300 * time.Second

	// Position updates are throttled unless identity changed.
	defaultMinUpdateGap = 5 * time.Second
	defaultMinMoveMi    = 0.5

	// Low altitude sustained this long deletes the object; the record
	// is kept and revived once the aircraft climbs through the higher
	// gate.
	defaultLandedAltFt    = 1000.0
	defaultLandedWait     = 180 * time.Second
	defaultLandClearAltFt = 1500.0

	sweepInterval = time.Second
)

// Config positions the tracker and sets its lifecycle thresholds.
// Zero thresholds fall back to the deployed defaults.
type Config struct {
	HomeLat float64
	HomeLon float64

	AddDistanceMi   float64
	ClearDistanceMi float64
	ObjectTTL       time.Duration
	MinUpdateGap    time.Duration
	MinMoveMi       float64
	LandedAltFt     float64
	LandedWait      time.Duration
	LandClearAltFt  float64

	// AppendSymbolTag adds the symbol word (PLANE, HELI, ...) to each
	// object comment.
	AppendSymbolTag bool
}

// flight is one tracked record, keyed by ICAO hex.
type flight struct {
	ac   types.Aircraft
	name string // current 9-char object name

	landed   bool
	lowSince time.Time // start of a sustained low-altitude stretch
	lastFix  time.Time // last position-bearing update, drives the TTL

	lastSent    time.Time
	lastSentLat float64
	lastSentLon float64
	hasSent     bool // an object is live under name
}

// Manager owns the flight table. Only its Run goroutine mutates state.
type Manager struct {
	cfg    Config
	sender Sender
	log    *log.Logger

	mu      sync.RWMutex
	flights map[string]*flight

	updates chan types.Aircraft
	now     func() time.Time
}

// NewManager creates a tracker centered on cfg's home position.
func NewManager(cfg Config, sender Sender, logger *log.Logger) *Manager {
	if cfg.AddDistanceMi == 0 {
		cfg.AddDistanceMi = defaultAddDistanceMi
	}
	if cfg.ClearDistanceMi == 0 {
		cfg.ClearDistanceMi = defaultClearDistanceMi
	}
	if cfg.ObjectTTL == 0 {
		cfg.ObjectTTL = defaultObjectTTL
	}
	if cfg.MinUpdateGap == 0 {
		cfg.MinUpdateGap = defaultMinUpdateGap
	}
	if cfg.MinMoveMi == 0 {
		cfg.MinMoveMi = defaultMinMoveMi
	}
	if cfg.LandedAltFt == 0 {
		cfg.LandedAltFt = defaultLandedAltFt
	}
	if cfg.LandedWait == 0 {
		cfg.LandedWait = defaultLandedWait
	}
	if cfg.LandClearAltFt == 0 {
		cfg.LandClearAltFt = defaultLandClearAltFt
	}
	return &Manager{
		cfg:     cfg,
		sender:  sender,
		log:     logger,
		flights: make(map[string]*flight),
		updates: make(chan types.Aircraft, 100),
		now:     time.Now,
	}
}

// Updates returns the channel feeding the tracker.
func (m *Manager) Updates() chan<- types.Aircraft {
	return m.updates
}

// Run is the main loop - only this goroutine modifies the table.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case u := <-m.updates:
			m.apply(u)
		case <-ticker.C:
			m.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// apply folds one partial update into the table and emits whatever
// objects the lifecycle calls for.
func (m *Manager) apply(u types.Aircraft) {
	u.ICAO = strings.ToUpper(u.ICAO)
	if u.ICAO == "" {
		return
	}
	now := m.now()

	var frames []string
	m.mu.Lock()

	f, ok := m.flights[u.ICAO]
	if !ok {
		// Outside -> tracked needs a position inside the add radius.
		if u.HasPosition && geo.DistanceMi(m.cfg.HomeLat, m.cfg.HomeLon, u.Lat, u.Lon) <= m.cfg.AddDistanceMi {
			f = &flight{ac: types.Aircraft{ICAO: u.ICAO}, lastFix: now}
			f.ac.Merge(u)
			f.name = objectNameFor(f.ac)
			m.flights[u.ICAO] = f
			if u.HasAltitude && u.Altitude <= m.cfg.LandedAltFt {
				f.lowSince = now
			}
			frames = append(frames, m.render(f, now))
			m.log.Info("tracking flight", "hex", u.ICAO, "name", strings.TrimSpace(f.name))
		}
		m.mu.Unlock()
		m.send(frames)
		return
	}

	// Range expiry outranks everything, including the throttle.
	if u.HasPosition && geo.DistanceMi(m.cfg.HomeLat, m.cfg.HomeLon, u.Lat, u.Lon) > m.cfg.ClearDistanceMi {
		if frame := m.expireLocked(f, "range", now); frame != "" {
			frames = append(frames, frame)
		}
		m.mu.Unlock()
		m.send(frames)
		return
	}

	if u.HasPosition {
		f.lastFix = now
	}

	identityChanged := (u.HasCallsign && u.Callsign != f.ac.Callsign) ||
		(u.HasCategory && u.Category != f.ac.Category) ||
		(u.HasType && u.AcType != f.ac.AcType)

	applyPos := false
	if u.HasPosition {
		if !f.hasSent || identityChanged {
			applyPos = true
		} else {
			moved := geo.DistanceMi(f.lastSentLat, f.lastSentLon, u.Lat, u.Lon)
			applyPos = now.Sub(f.lastSent) >= m.cfg.MinUpdateGap && moved >= m.cfg.MinMoveMi
		}
	}

	merged := u
	if !applyPos {
		merged.HasPosition = false
	}
	f.ac.Merge(merged)

	if kill := m.updateLanded(f, u, now); kill != "" {
		frames = append(frames, kill)
	}

	if identityChanged {
		if newName := objectNameFor(f.ac); newName != f.name {
			if f.hasSent {
				frames = append(frames, m.renderKill(f, f.name, now))
			}
			m.log.Info("flight renamed", "hex", f.ac.ICAO,
				"old", strings.TrimSpace(f.name), "new", strings.TrimSpace(newName))
			f.name = newName
		}
	}

	if (applyPos || identityChanged) && !f.landed {
		frames = append(frames, m.render(f, now))
	}

	m.mu.Unlock()
	m.send(frames)
}

// updateLanded advances the landed state from a position fix; velocity
// and identity updates never touch it, and a fix with no altitude reads
// as airborne. Completing the dwell withdraws the object and returns
// its delete frame; the record stays, absorbing updates, until the
// aircraft climbs through the clear gate.
func (m *Manager) updateLanded(f *flight, u types.Aircraft, now time.Time) string {
	if !u.HasPosition {
		return ""
	}
	if !u.HasAltitude {
		f.lowSince = time.Time{}
		m.resume(f)
		return ""
	}
	switch {
	case u.Altitude <= m.cfg.LandedAltFt:
		if f.landed {
			return ""
		}
		if f.lowSince.IsZero() {
			f.lowSince = now
			return ""
		}
		if now.Sub(f.lowSince) < m.cfg.LandedWait {
			return ""
		}
		f.landed = true
		f.lowSince = time.Time{}
		m.log.Info("flight landed", "hex", f.ac.ICAO, "name", strings.TrimSpace(f.name))
		kill := m.renderKill(f, f.name, now)
		f.lastSent = time.Time{}
		f.lastSentLat, f.lastSentLon = 0, 0
		f.hasSent = false
		return kill
	case u.Altitude > m.cfg.LandClearAltFt:
		f.lowSince = time.Time{}
		m.resume(f)
		return ""
	default:
		// Between the gates: the low stretch is broken, but a landed
		// record stays landed until it climbs through the clear gate.
		f.lowSince = time.Time{}
		return ""
	}
}

// resume lifts the landed hold; the next rendered frame re-creates the
// object under the record's current name.
func (m *Manager) resume(f *flight) {
	if f.landed {
		f.landed = false
		m.log.Info("flight airborne again", "hex", f.ac.ICAO, "name", strings.TrimSpace(f.name))
	}
}

// sweep deletes records whose last position fix has gone stale.
func (m *Manager) sweep() {
	now := m.now()

	var frames []string
	m.mu.Lock()
	for _, f := range m.flights {
		if now.Sub(f.lastFix) > m.cfg.ObjectTTL {
			if frame := m.expireLocked(f, "ttl", now); frame != "" {
				frames = append(frames, frame)
			}
		}
	}
	m.mu.Unlock()
	m.send(frames)
}

// expireLocked removes the record; only a record with a live object
// renders a delete packet.
func (m *Manager) expireLocked(f *flight, cause string, now time.Time) string {
	delete(m.flights, f.ac.ICAO)
	m.log.Info("flight expired", "hex", f.ac.ICAO,
		"name", strings.TrimSpace(f.name), "cause", cause)
	if !f.hasSent {
		return ""
	}
	return m.renderKill(f, f.name, now)
}

// render formats a live object for the record and marks it sent.
func (m *Manager) render(f *flight, now time.Time) string {
	f.lastSent = now
	f.lastSentLat = f.ac.Lat
	f.lastSentLon = f.ac.Lon
	f.hasSent = true
	return aprs.MakeAircraftObject(f.name, f.ac, now, m.cfg.AppendSymbolTag, false)
}

// renderKill formats a delete packet at the last position the IS side
// saw, falling back to the current fix.
func (m *Manager) renderKill(f *flight, name string, now time.Time) string {
	ac := f.ac
	if f.hasSent {
		ac.Lat = f.lastSentLat
		ac.Lon = f.lastSentLon
	} else if !ac.HasPosition {
		ac.Lat, ac.Lon = 0, 0
	}
	return aprs.MakeAircraftObject(name, ac, now, m.cfg.AppendSymbolTag, true)
}

// send pushes rendered frames to the uplink outside the table lock.
func (m *Manager) send(frames []string) {
	for _, frame := range frames {
		if err := m.sender.Send(frame); err != nil {
			m.log.Debug("aircraft object not sent", "err", err)
		}
	}
}

// objectNameFor prefers the callsign and falls back to the hex.
func objectNameFor(ac types.Aircraft) string {
	if ac.HasCallsign && strings.TrimSpace(ac.Callsign) != "" {
		return aprs.ObjectName(ac.Callsign)
	}
	return aprs.ObjectName(ac.ICAO)
}

// Snapshot returns a copy of all tracked flights.
func (m *Manager) Snapshot() []types.Aircraft {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]types.Aircraft, 0, len(m.flights))
	for _, f := range m.flights {
		list = append(list, f.ac)
	}
	return list
}

// Count returns the number of tracked flights.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flights)
}

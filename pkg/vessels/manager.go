// Package vessels tracks AIS contacts and publishes each accepted fix
// as an APRS object. Contacts are never deleted; a vessel that goes
// quiet simply stops updating.
package vessels

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aprs-bridge/pkg/ais"
	"aprs-bridge/pkg/aprs"
	"aprs-bridge/pkg/geo"
	"aprs-bridge/pkg/types"
)

// Sender delivers finished APRS information fields to the uplink.
type Sender interface {
	Send(info string) error
}

const (
	// Fixes further than this from the configured center are receiver
	// noise, not reachable marine traffic.
	defaultMaxRangeNM = 250.0

	// A contact cannot move 150 nm in under 15 minutes; such a fix is
	// a decode glitch or an MMSI collision.
	defaultTeleportNM     = 150.0
	defaultTeleportWindow = 900 * time.Second

	// GPS units without a fix report positions at the origin.
	nearZeroDeg = 0.001
)

// Config positions the tracker and sets its filter thresholds.
// Zero thresholds fall back to the deployed defaults.
type Config struct {
	CenterLat float64
	CenterLon float64

	MaxRangeNM     float64
	TeleportNM     float64
	TeleportWindow time.Duration
}

// Manager owns the vessel table. Only its Run goroutine mutates state;
// everything else reads snapshots.
type Manager struct {
	cfg    Config
	sender Sender
	log    *log.Logger

	mu      sync.RWMutex
	vessels map[uint32]*types.Vessel
	names   map[uint32]string

	reports chan ais.Report
	now     func() time.Time
}

// NewManager creates a tracker centered on cfg's receiver position.
func NewManager(cfg Config, sender Sender, logger *log.Logger) *Manager {
	if cfg.MaxRangeNM == 0 {
		cfg.MaxRangeNM = defaultMaxRangeNM
	}
	if cfg.TeleportNM == 0 {
		cfg.TeleportNM = defaultTeleportNM
	}
	if cfg.TeleportWindow == 0 {
		cfg.TeleportWindow = defaultTeleportWindow
	}
	return &Manager{
		cfg:     cfg,
		sender:  sender,
		log:     logger,
		vessels: make(map[uint32]*types.Vessel),
		names:   make(map[uint32]string),
		reports: make(chan ais.Report, 100),
		now:     time.Now,
	}
}

// Reports returns the channel feeding the tracker.
func (m *Manager) Reports() chan<- ais.Report {
	return m.reports
}

// Run is the main loop - only this goroutine modifies the table.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case rpt := <-m.reports:
			m.apply(rpt)
		case <-ctx.Done():
			return
		}
	}
}

// apply routes one decoded report into the name cache and the table.
func (m *Manager) apply(rpt ais.Report) {
	if rpt.HasName {
		m.applyName(rpt)
	}
	if rpt.HasPosition {
		m.applyPosition(rpt)
	}
}

// applyName stores a static-report name. Names arrive independently of
// positions and may precede the first fix, so they live in their own
// cache until a contact exists to carry them.
func (m *Manager) applyName(rpt ais.Report) {
	m.mu.Lock()
	m.names[rpt.MMSI] = rpt.Name
	if v, ok := m.vessels[rpt.MMSI]; ok {
		v.Name = rpt.Name
	}
	m.mu.Unlock()
	m.log.Debug("vessel name", "mmsi", rpt.MMSI, "name", rpt.Name)
}

// applyPosition runs the fix through the gates, upserts the contact and
// emits one APRS object.
func (m *Manager) applyPosition(rpt ais.Report) {
	now := m.now()

	if math.Abs(rpt.Lat) < nearZeroDeg && math.Abs(rpt.Lon) < nearZeroDeg {
		m.log.Debug("dropping near-origin fix", "mmsi", rpt.MMSI)
		return
	}
	if d := geo.DistanceNM(m.cfg.CenterLat, m.cfg.CenterLon, rpt.Lat, rpt.Lon); d > m.cfg.MaxRangeNM {
		m.log.Debug("dropping out-of-range fix", "mmsi", rpt.MMSI, "nm", d)
		return
	}

	m.mu.Lock()
	v, ok := m.vessels[rpt.MMSI]
	if ok {
		moved := geo.DistanceNM(v.Lat, v.Lon, rpt.Lat, rpt.Lon)
		if dt := now.Sub(v.LastSeen); moved > m.cfg.TeleportNM && dt < m.cfg.TeleportWindow {
			m.mu.Unlock()
			m.log.Debug("dropping teleport fix", "mmsi", rpt.MMSI, "nm", moved, "dt", dt)
			return
		}
	} else {
		v = &types.Vessel{MMSI: rpt.MMSI}
		m.vessels[rpt.MMSI] = v
		m.log.Info("tracking new vessel", "mmsi", rpt.MMSI, "name", m.names[rpt.MMSI])
	}

	v.Lat, v.Lon = rpt.Lat, rpt.Lon
	v.Speed, v.Course, v.Heading = rpt.Speed, rpt.Course, rpt.Heading
	v.HasSpeed, v.HasCourse, v.HasHeading = rpt.HasSpeed, rpt.HasCourse, rpt.HasHeading
	v.MsgType = rpt.MsgType
	table, code, class := aprs.VesselSymbol(rpt.MsgType)
	v.Symbol = string([]byte{table, code})
	v.Class = class
	if name, ok := m.names[rpt.MMSI]; ok {
		v.Name = name
	}
	v.LastSeen = now
	snapshot := *v
	m.mu.Unlock()

	if err := m.sender.Send(aprs.MakeVesselObject(snapshot, now)); err != nil {
		m.log.Debug("vessel object not sent", "mmsi", rpt.MMSI, "err", err)
	}
}

// Snapshot returns a copy of all tracked vessels.
func (m *Manager) Snapshot() []types.Vessel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]types.Vessel, 0, len(m.vessels))
	for _, v := range m.vessels {
		list = append(list, *v)
	}
	return list
}

// Count returns the number of tracked vessels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vessels)
}

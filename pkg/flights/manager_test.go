package flights

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprs-bridge/pkg/types"
)

// KBUF.
const (
	homeLat = 42.9405
	homeLon = -78.7322

	degPerMile = 1.0 / 69.09
)

type fakeSender struct {
	mu     sync.Mutex
	frames []string
}

func (f *fakeSender) Send(info string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, info)
	return nil
}

func (f *fakeSender) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func testLogger() *log.Logger {
	logger := log.New(io.Discard)
	logger.SetLevel(log.FatalLevel)
	return logger
}

type harness struct {
	m      *Manager
	sender *fakeSender
	now    time.Time
}

func newHarness() *harness {
	h := &harness{
		sender: &fakeSender{},
		now:    time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
	h.m = NewManager(Config{HomeLat: homeLat, HomeLon: homeLon, AppendSymbolTag: true}, h.sender, testLogger())
	h.m.now = func() time.Time { return h.now }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// position builds an update at the given range north of home.
func (h *harness) position(hex string, milesOut, altFt float64) types.Aircraft {
	return types.Aircraft{
		ICAO:        hex,
		Lat:         homeLat + milesOut*degPerMile,
		Lon:         homeLon,
		Altitude:    altFt,
		Timestamp:   h.now,
		HasPosition: true,
		HasAltitude: true,
	}
}

func TestCreateInsideAddRadius(t *testing.T) {
	h := newHarness()

	h.m.apply(h.position("abc123", 10, 5000))

	assert.Equal(t, 1, h.m.Count())
	frames := h.sender.all()
	require.Len(t, frames, 1)
	assert.True(t, strings.HasPrefix(frames[0], ";ABC123   *"))
	assert.Contains(t, frames[0], "ICAO ABC123")
	assert.Contains(t, frames[0], "/A=005000")
}

func TestOutsideAddRadiusIgnored(t *testing.T) {
	h := newHarness()

	h.m.apply(h.position("abc123", 36, 5000))

	assert.Equal(t, 0, h.m.Count())
	assert.Equal(t, 0, h.sender.count())
}

func TestThrottleSuppressesJitter(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))
	require.Equal(t, 1, h.sender.count())

	// Too soon and barely moved.
	h.advance(time.Second)
	h.m.apply(h.position("abc123", 10.1, 5000))
	assert.Equal(t, 1, h.sender.count())

	// Time passed but still within the move threshold.
	h.advance(6 * time.Second)
	h.m.apply(h.position("abc123", 10.2, 5000))
	assert.Equal(t, 1, h.sender.count())

	// Both thresholds cleared.
	h.advance(6 * time.Second)
	h.m.apply(h.position("abc123", 11, 5000))
	assert.Equal(t, 2, h.sender.count())
}

func TestIdenticalUpdateEmitsNothing(t *testing.T) {
	h := newHarness()
	u := h.position("abc123", 10, 5000)
	h.m.apply(u)
	h.advance(time.Second)
	h.m.apply(u)
	assert.Equal(t, 1, h.sender.count())
}

func TestCallsignRename(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))

	h.advance(time.Second)
	u := h.position("abc123", 10, 5000)
	u.Callsign = "JBU604"
	u.HasCallsign = true
	h.m.apply(u)

	frames := h.sender.all()
	require.Len(t, frames, 3)
	// Delete under the hex name, then create under the callsign.
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
	assert.Contains(t, frames[1], "DEL")
	assert.True(t, strings.HasPrefix(frames[2], ";JBU604   *"))

	// Same record, position untouched.
	assert.Equal(t, 1, h.m.Count())
	snap := h.m.Snapshot()
	assert.InDelta(t, homeLat+10*degPerMile, snap[0].Lat, 1e-9)
}

func TestCategoryChangeBeatsThrottle(t *testing.T) {
	h := newHarness()
	create := h.position("abc123", 10, 5000)
	create.Category = "A3"
	create.HasCategory = true
	h.m.apply(create)

	// Metadata-only update inside the throttle window.
	h.advance(time.Second)
	u := types.Aircraft{ICAO: "abc123", Category: "A7", HasCategory: true, Timestamp: h.now}
	h.m.apply(u)

	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.Contains(t, frames[1], "SYM HELI")
	// No rename happened: the name is still the hex.
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   *"))
}

func TestLandingWithdrawsObject(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))

	// Descend below the landed gate and hold it there.
	h.advance(10 * time.Second)
	h.m.apply(h.position("abc123", 11, 800))
	require.Equal(t, 2, h.sender.count())

	h.advance(90 * time.Second)
	h.m.apply(h.position("abc123", 12, 700))
	require.Equal(t, 3, h.sender.count())

	// This fix completes the 180s sustain: one delete goes out, placed
	// at the last published position, not the completing fix.
	h.advance(100 * time.Second)
	h.m.apply(h.position("abc123", 13, 600))
	frames := h.sender.all()
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[3], ";ABC123   _"))
	assert.Contains(t, frames[3], "DEL")
	assert.Contains(t, frames[3], "4306.85N")

	// Still tracked and still absorbing updates silently.
	h.advance(10 * time.Second)
	h.m.apply(h.position("abc123", 14, 500))
	assert.Equal(t, 4, h.sender.count())
	assert.Equal(t, 1, h.m.Count())
	snap := h.m.Snapshot()
	assert.InDelta(t, 500, snap[0].Altitude, 1e-9)
}

func TestLandedResumesWhenAirborne(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))

	h.advance(defaultLandedWait + time.Second)
	h.m.apply(h.position("abc123", 11, 700))
	frames := h.sender.all()
	require.Len(t, frames, 2) // create, then the landing delete
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))

	// Between the gates: still landed, still silent.
	h.advance(10 * time.Second)
	h.m.apply(h.position("abc123", 12, 1200))
	assert.Equal(t, 2, h.sender.count())

	// Through the clear gate: the object comes back under its name.
	h.advance(10 * time.Second)
	h.m.apply(h.position("abc123", 13, 1600))
	frames = h.sender.all()
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[2], ";ABC123   *"))
}

func TestLandingNeedsFreshFix(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))

	// A silent dwell never completes through the sweep; silence is the
	// TTL's business.
	h.advance(defaultLandedWait + time.Second)
	h.m.sweep()
	assert.Equal(t, 1, h.sender.count())
	assert.Equal(t, 1, h.m.Count())

	// The next low fix completes it.
	h.m.apply(h.position("abc123", 11, 700))
	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
	assert.Contains(t, frames[1], "DEL")
}

func TestRenameWhileLanded(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))

	h.advance(defaultLandedWait + time.Second)
	h.m.apply(h.position("abc123", 11, 700))
	require.Equal(t, 2, h.sender.count()) // landed, hex object deleted

	// Callsign learned on the ground: nothing is live, the name swaps
	// silently.
	h.advance(10 * time.Second)
	u := types.Aircraft{ICAO: "abc123", Callsign: "JBU604", HasCallsign: true, Timestamp: h.now}
	h.m.apply(u)
	require.Equal(t, 2, h.sender.count())

	// Departure re-creates under the callsign.
	h.advance(10 * time.Second)
	h.m.apply(h.position("abc123", 12, 1600))

	// Leaving the radius kills that. Every name that went live got its
	// delete.
	h.advance(time.Minute)
	h.m.apply(h.position("abc123", 41, 5000))

	frames := h.sender.all()
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], ";ABC123   *"))
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
	assert.Contains(t, frames[1], "DEL")
	assert.True(t, strings.HasPrefix(frames[2], ";JBU604   *"))
	assert.True(t, strings.HasPrefix(frames[3], ";JBU604   _"))
	assert.Contains(t, frames[3], "DEL")
	assert.Equal(t, 0, h.m.Count())
}

func TestAltitudeGapResetsDwell(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))

	// A fix with no altitude reads as airborne and restarts the clock.
	h.advance(90 * time.Second)
	gap := h.position("abc123", 11, 0)
	gap.HasAltitude = false
	h.m.apply(gap)

	h.advance(91 * time.Second)
	h.m.apply(h.position("abc123", 12, 700))
	frames := h.sender.all()
	require.Len(t, frames, 3)
	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, ";ABC123   *"))
	}

	// The restarted dwell still completes once it is sustained.
	h.advance(defaultLandedWait + time.Second)
	h.m.apply(h.position("abc123", 13, 650))
	frames = h.sender.all()
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[3], ";ABC123   _"))
}

func TestLandedResumesOnMissingAltitude(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))
	h.advance(defaultLandedWait + time.Second)
	h.m.apply(h.position("abc123", 11, 700))
	require.Equal(t, 2, h.sender.count()) // landed

	// Altitude dropping out of the feed reads as airborne.
	h.advance(10 * time.Second)
	u := h.position("abc123", 12, 0)
	u.HasAltitude = false
	h.m.apply(u)

	frames := h.sender.all()
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[2], ";ABC123   *"))
}

func TestVelocityOnlyKeepsDwell(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))

	// Velocity lines carry no position and are no evidence of flight.
	h.advance(60 * time.Second)
	u := types.Aircraft{ICAO: "abc123", Speed: 8, Track: 270, HasSpeed: true, HasTrack: true, Timestamp: h.now}
	h.m.apply(u)
	assert.Equal(t, 1, h.sender.count())

	h.advance(defaultLandedWait - 59*time.Second)
	h.m.apply(h.position("abc123", 10.6, 700))
	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
	assert.Contains(t, frames[1], "DEL")
}

func TestRangeExpiry(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))

	h.advance(time.Minute)
	h.m.apply(h.position("abc123", 41, 5000))

	assert.Equal(t, 0, h.m.Count())
	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
	assert.Contains(t, frames[1], "DEL")

	// The delete is placed at the last position actually published,
	// 10 miles north of home, not at the out-of-range fix.
	assert.Contains(t, frames[1], "4305.11N")
}

func TestTTLExpiry(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))

	h.advance(defaultObjectTTL + time.Second)
	h.m.sweep()

	assert.Equal(t, 0, h.m.Count())
	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))

	// Exactly one delete: further sweeps stay quiet.
	h.m.sweep()
	assert.Len(t, h.sender.all(), 2)
}

func TestLandedStillExpires(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 800))
	h.advance(defaultLandedWait + time.Second)
	h.m.apply(h.position("abc123", 11, 700))
	require.Equal(t, 2, h.sender.count()) // landed, object deleted

	// The table entry ages out silently: its delete already went.
	h.advance(defaultObjectTTL + time.Second)
	h.m.sweep()

	assert.Equal(t, 0, h.m.Count())
	frames := h.sender.all()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], ";ABC123   _"))
}

func TestMetadataMergesIntoRecord(t *testing.T) {
	h := newHarness()
	h.m.apply(h.position("abc123", 10, 5000))

	h.advance(time.Second)
	u := types.Aircraft{
		ICAO: "abc123", AcType: "B738", HasType: true, Timestamp: h.now,
	}
	h.m.apply(u)

	snap := h.m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "B738", snap[0].AcType)
}

func TestMetadataForUntrackedIgnored(t *testing.T) {
	h := newHarness()
	u := types.Aircraft{ICAO: "abc123", Callsign: "JBU604", HasCallsign: true, Timestamp: h.now}
	h.m.apply(u)
	assert.Equal(t, 0, h.m.Count())
	assert.Equal(t, 0, h.sender.count())
}

package vessels

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprs-bridge/pkg/ais"
)

const (
	centerLat = 42.9
	centerLon = -78.9
)

type fakeSender struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (f *fakeSender) Send(info string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, info)
	return f.err
}

func (f *fakeSender) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func testLogger() *log.Logger {
	logger := log.New(io.Discard)
	logger.SetLevel(log.FatalLevel)
	return logger
}

func newTestManager() (*Manager, *fakeSender, *time.Time) {
	sender := &fakeSender{}
	m := NewManager(Config{CenterLat: centerLat, CenterLon: centerLon}, sender, testLogger())
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, sender, &now
}

func positionReport(mmsi uint32, lat, lon float64) ais.Report {
	return ais.Report{
		MsgType:     1,
		MMSI:        mmsi,
		Lat:         lat,
		Lon:         lon,
		Speed:       10,
		Course:      90,
		HasPosition: true,
		HasSpeed:    true,
		HasCourse:   true,
	}
}

func TestPositionCreatesContact(t *testing.T) {
	m, sender, _ := newTestManager()

	m.apply(positionReport(366123456, 43.0, -78.8))

	assert.Equal(t, 1, m.Count())
	frames := sender.all()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], ";366123456*")
	assert.Contains(t, frames[0], "MMSI 366123456")
	assert.Contains(t, frames[0], "090/010")
}

func TestNearOriginDropped(t *testing.T) {
	m, sender, _ := newTestManager()

	m.apply(positionReport(366123456, 0.0005, -0.0002))

	assert.Equal(t, 0, m.Count())
	assert.Empty(t, sender.all())
}

func TestRangeGate(t *testing.T) {
	m, sender, _ := newTestManager()

	// Four degrees north is about 240 nm: inside.
	m.apply(positionReport(1, centerLat+4.0, centerLon))
	assert.Equal(t, 1, m.Count())

	// Four and a half degrees is about 270 nm: outside.
	m.apply(positionReport(2, centerLat+4.5, centerLon))
	assert.Equal(t, 1, m.Count())

	// The gate sits at 250 nm. A fix 249.8 nm out is kept, one
	// 250.2 nm out is dropped.
	m.apply(positionReport(3, centerLat+4.16031, centerLon))
	assert.Equal(t, 2, m.Count())
	m.apply(positionReport(4, centerLat+4.16697, centerLon))
	assert.Equal(t, 2, m.Count())
	assert.Len(t, sender.all(), 2)
}

func TestTeleportGate(t *testing.T) {
	m, sender, now := newTestManager()

	m.apply(positionReport(366123456, 43.0, -78.9))
	require.Equal(t, 1, m.Count())

	// A three degree jump in the same second cannot be real.
	*now = now.Add(time.Second)
	m.apply(positionReport(366123456, 46.0, -78.9))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.InDelta(t, 43.0, snap[0].Lat, 1e-9)
	assert.Len(t, sender.all(), 1)

	// After a long silence the same jump is plausible.
	*now = now.Add(defaultTeleportWindow)
	m.apply(positionReport(366123456, 46.0, -78.9))

	snap = m.Snapshot()
	assert.InDelta(t, 46.0, snap[0].Lat, 1e-9)
	assert.Len(t, sender.all(), 2)
}

func TestNameBeforePosition(t *testing.T) {
	m, sender, _ := newTestManager()

	m.apply(ais.Report{MsgType: 5, MMSI: 366123456, Name: "EVER GIVEN", HasName: true})
	assert.Equal(t, 0, m.Count())

	m.apply(positionReport(366123456, 43.0, -78.8))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "EVER GIVEN", snap[0].Name)
	require.Len(t, sender.all(), 1)
	assert.Contains(t, sender.all()[0], "NAME EVER GIVEN")
}

func TestNameAfterPosition(t *testing.T) {
	m, sender, _ := newTestManager()

	m.apply(positionReport(366123456, 43.0, -78.8))
	assert.NotContains(t, sender.all()[0], "NAME")

	m.apply(ais.Report{MsgType: 24, MMSI: 366123456, Name: "SEAS THE DAY", HasName: true})

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "SEAS THE DAY", snap[0].Name)

	m.apply(positionReport(366123456, 43.01, -78.8))
	assert.Contains(t, sender.all()[1], "NAME SEAS THE DAY")
}

func TestContactsNeverExpire(t *testing.T) {
	m, _, now := newTestManager()

	m.apply(positionReport(366123456, 43.0, -78.8))
	*now = now.Add(24 * time.Hour)
	m.apply(positionReport(999999999, 43.1, -78.8))

	assert.Equal(t, 2, m.Count())
}

func TestSendFailureStillTracks(t *testing.T) {
	m, sender, _ := newTestManager()
	sender.err = errors.New("session down")

	m.apply(positionReport(366123456, 43.0, -78.8))

	assert.Equal(t, 1, m.Count())
}

func TestBaseStationSymbol(t *testing.T) {
	m, sender, _ := newTestManager()

	rpt := positionReport(3669705, 42.94, -78.73)
	rpt.MsgType = 4
	rpt.HasSpeed = false
	rpt.HasCourse = false
	m.apply(rpt)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "/r", snap[0].Symbol)
	assert.Equal(t, "Base station", snap[0].Class)
	assert.Contains(t, sender.all()[0], "Wr")
}

func TestRunLoop(t *testing.T) {
	sender := &fakeSender{}
	m := NewManager(Config{CenterLat: centerLat, CenterLon: centerLon}, sender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Reports() <- positionReport(366123456, 43.0, -78.8)

	deadline := time.Now().Add(5 * time.Second)
	for m.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("report never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

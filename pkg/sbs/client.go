// Package sbs reads BaseStation (SBS-1) messages from a dump1090 TCP
// port and turns them into partial aircraft updates.
package sbs

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"aprs-bridge/pkg/types"
)

const (
	dialTimeout = 10 * time.Second
	dialRetry   = 5 * time.Second
	redialDelay = 2 * time.Second

	// A healthy dump1090 emits several lines per second; a minute of
	// silence means the connection is dead even if TCP disagrees.
	readTimeout = 60 * time.Second
)

// Client connects to a dump1090 SBS output port.
type Client struct {
	addr string
	log  *log.Logger
}

// NewClient creates a new SBS client.
func NewClient(addr string, logger *log.Logger) *Client {
	return &Client{addr: addr, log: logger}
}

// Run dials and reads messages until the context is canceled, sending
// aircraft updates to the channel. Connection failures redial forever.
func (c *Client) Run(ctx context.Context, updates chan<- types.Aircraft) error {
	for {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("dump1090 connect failed", "addr", c.addr, "err", err)
			select {
			case <-time.After(dialRetry):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		c.log.Info("connected to dump1090", "addr", c.addr)
		c.read(ctx, conn, updates)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(redialDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// read consumes one connection until it breaks or the context ends.
func (c *Client) read(ctx context.Context, conn net.Conn, updates chan<- types.Aircraft) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if !scanner.Scan() {
			break
		}
		if ac, ok := ParseLine(scanner.Text()); ok {
			select {
			case updates <- ac:
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.log.Warn("dump1090 read error", "err", err)
	}
}

// ParseLine parses one BaseStation message. Only the transmission types
// the tracker consumes are handled:
//
//	1: identification (callsign)
//	3: airborne position (lat/lon, altitude)
//	4: velocity (ground speed, track)
//
// Fields (0-indexed): 0 "MSG", 1 transmission type, 4 ICAO hex,
// 10 callsign, 11 altitude, 12 ground speed, 13 track, 14 latitude,
// 15 longitude. The hex is mandatory; numeric fields may carry
// decimals and are parsed as floats.
func ParseLine(line string) (types.Aircraft, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 22 || fields[0] != "MSG" {
		return types.Aircraft{}, false
	}

	icao := strings.ToUpper(strings.TrimSpace(fields[4]))
	if icao == "" {
		return types.Aircraft{}, false
	}

	ac := types.Aircraft{
		ICAO:      icao,
		Timestamp: time.Now(),
	}

	switch fields[1] {
	case "1":
		if cs := strings.ToUpper(strings.TrimSpace(fields[10])); cs != "" {
			ac.Callsign = cs
			ac.HasCallsign = true
		}

	case "3":
		if alt, ok := floatField(fields[11]); ok {
			ac.Altitude = alt
			ac.HasAltitude = true
		}
		lat, okLat := floatField(fields[14])
		lon, okLon := floatField(fields[15])
		if okLat && okLon {
			ac.Lat = lat
			ac.Lon = lon
			ac.HasPosition = true
		}

	case "4":
		if spd, ok := floatField(fields[12]); ok {
			ac.Speed = spd
			ac.HasSpeed = true
		}
		if trk, ok := floatField(fields[13]); ok {
			ac.Track = trk
			ac.HasTrack = true
		}

	default:
		return types.Aircraft{}, false
	}

	return ac, true
}

func floatField(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

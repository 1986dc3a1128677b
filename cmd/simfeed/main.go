// Command simfeed generates synthetic AIS and SBS traffic for bench
// testing the bridge without radios. A handful of lake freighters are
// pushed as !AIVDM sentences to an NMEA listener, and a few aircraft
// are served as BaseStation messages on a dump1090-style port.
package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"aprs-bridge/pkg/nmea"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second

	// KBUF field elevation; descending aircraft stop here.
	fieldElevationFt = 728

	// Static and identification reports go out once per staticEvery
	// rounds, the way real transponders repeat them far less often
	// than position.
	staticEvery = 10
)

func main() {
	aisAddr := pflag.String("ais", "localhost:10110", "")
	sbsAddr := pflag.String("sbs-listen", ":30003", "")
	delay := pflag.DurationP("delay", "d", time.Second, "")
	rounds := pflag.IntP("rounds", "n", 0, "")
	help := pflag.Bool("help", false, "")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "simfeed - synthetic AIS and ADS-B traffic generator\n\n")
		fmt.Fprintf(os.Stderr, "Usage: simfeed [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fmt.Fprintf(os.Stderr, "  --ais addr          NMEA listener to feed AIS sentences to (empty disables)\n")
		fmt.Fprintf(os.Stderr, "  --sbs-listen addr   address to serve BaseStation messages on (empty disables)\n")
		fmt.Fprintf(os.Stderr, "  -d, --delay dur     pause between rounds\n")
		fmt.Fprintf(os.Stderr, "  -n, --rounds n      stop after n rounds, 0 runs forever\n")
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "simfeed",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *aisAddr, *sbsAddr, *delay, *rounds); err != nil {
		logger.Error("simfeed failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, aisAddr, sbsAddr string, delay time.Duration, maxRounds int) error {
	fleet := []simVessel{
		{mmsi: 366999001, name: "STEWART J CORT", call: "WDC7821", dest: "BURNS HARBOR",
			lat: 42.8410, lon: -79.0520, speedKt: 12.5, course: 245, draught: 8.2},
		{mmsi: 316021342, name: "ALGOMA EQUINOX", call: "VCQM", dest: "HAMILTON",
			lat: 42.7830, lon: -79.3510, speedKt: 13.2, course: 65, draught: 7.9},
		{mmsi: 367044250, name: "JAMES R BARKER", call: "WDD9513", dest: "DULUTH",
			lat: 42.8705, lon: -78.9240, speedKt: 8.4, course: 210, draught: 8.6},
	}
	planes := []simAircraft{
		{icao: "A1B2C3", callsign: "JBU604", lat: 43.0510, lon: -78.5480,
			altFt: 4000, speedKt: 180, track: 230, vertRate: -800},
		{icao: "AB3F21", callsign: "DAL2362", lat: 42.7040, lon: -78.9550,
			altFt: 35000, speedKt: 452, track: 80, vertRate: 0},
		{icao: "ACF9E2", callsign: "SWA1234", lat: 42.9530, lon: -78.7280,
			altFt: 2000, speedKt: 165, track: 45, vertRate: 1200},
	}

	var ais *aisFeeder
	if aisAddr != "" {
		ais = &aisFeeder{addr: aisAddr, log: logger.WithPrefix("ais")}
	}

	var sbs *sbsServer
	if sbsAddr != "" {
		sbs = &sbsServer{log: logger.WithPrefix("sbs")}
		if err := sbs.listen(ctx, sbsAddr); err != nil {
			return fmt.Errorf("sbs listen: %w", err)
		}
	}
	if ais == nil && sbs == nil {
		return fmt.Errorf("nothing to do: both --ais and --sbs-listen are empty")
	}

	logger.Info("serving synthetic traffic",
		"vessels", len(fleet), "aircraft", len(planes),
		"ais", aisAddr, "sbs", sbsAddr, "delay", delay)

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	round := 0
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for i := range fleet {
			v := &fleet[i]
			v.advance(delay)
			channel := "A"
			if i%2 == 1 {
				channel = "B"
			}
			if ais != nil {
				ais.send(ctx, v.positionSentences(channel))
				if round%staticEvery == 0 {
					ais.send(ctx, v.staticSentences(seq, channel))
					seq = (seq + 1) % 10
				}
			}
		}

		for i := range planes {
			a := &planes[i]
			a.advance(delay)
			if sbs != nil {
				sbs.broadcast(a.positionLine())
				sbs.broadcast(a.velocityLine())
				if round%staticEvery == 0 {
					sbs.broadcast(a.identLine())
				}
			}
		}

		round++
		if maxRounds > 0 && round >= maxRounds {
			logger.Info("replay complete", "rounds", round)
			return nil
		}
	}
}

// stepPosition dead-reckons a new lat/lon from speed over ground and
// course, shrinking the longitude step by the latitude's cosine.
func stepPosition(lat, lon, speedKt, courseDeg float64, dt time.Duration) (float64, float64) {
	distNM := speedKt * dt.Hours()
	rad := courseDeg * math.Pi / 180
	latFactor := math.Cos(lat * math.Pi / 180)
	lat += distNM * math.Cos(rad) / 60
	lon += distNM * math.Sin(rad) / (60 * latFactor)
	return lat, lon
}

type simVessel struct {
	mmsi    uint32
	name    string
	call    string
	dest    string
	lat     float64
	lon     float64
	speedKt float64
	course  float64
	draught float64
}

func (v *simVessel) advance(dt time.Duration) {
	v.lat, v.lon = stepPosition(v.lat, v.lon, v.speedKt, v.course, dt)
}

// positionSentences encodes a type 1 position report.
func (v *simVessel) positionSentences(channel string) []string {
	var b nmea.Bits
	b = b.AppendUint(1, 6)  // message type
	b = b.AppendUint(0, 2)  // repeat indicator
	b = b.AppendUint(v.mmsi, 30)
	b = b.AppendUint(0, 4)  // nav status: under way using engine
	b = b.AppendInt(0, 8)   // rate of turn
	b = b.AppendUint(uint32(v.speedKt*10+0.5), 10)
	b = b.AppendUint(0, 1) // position accuracy
	b = b.AppendInt(int32(v.lon*600000), 28)
	b = b.AppendInt(int32(v.lat*600000), 27)
	b = b.AppendUint(uint32(v.course*10+0.5)%3600, 12)
	b = b.AppendUint(uint32(v.course+0.5)%360, 9) // heading follows course
	b = b.AppendUint(uint32(time.Now().UTC().Second()), 6)
	b = b.AppendUint(0, 2)  // maneuver indicator
	b = b.AppendUint(0, 3)  // spare
	b = b.AppendUint(0, 1)  // RAIM
	b = b.AppendUint(0, 19) // radio status

	payload, fill := nmea.Armor(b)
	return nmea.BuildVDM(0, channel, payload, fill)
}

// staticSentences encodes a type 5 static voyage report. At 424 bits it
// always armors into two fragments, which keeps the listener's
// reassembly path exercised.
func (v *simVessel) staticSentences(seq int, channel string) []string {
	var b nmea.Bits
	b = b.AppendUint(5, 6) // message type
	b = b.AppendUint(0, 2) // repeat indicator
	b = b.AppendUint(v.mmsi, 30)
	b = b.AppendUint(0, 2)  // AIS version
	b = b.AppendUint(0, 30) // IMO number
	b = b.AppendText(v.call, 42)
	b = b.AppendText(v.name, 120)
	b = b.AppendUint(70, 8) // ship type: cargo
	b = b.AppendUint(280, 9)
	b = b.AppendUint(25, 9)
	b = b.AppendUint(12, 6)
	b = b.AppendUint(12, 6)
	b = b.AppendUint(1, 4) // EPFD: GPS
	b = b.AppendUint(0, 4) // ETA month
	b = b.AppendUint(0, 5) // ETA day
	b = b.AppendUint(0, 5) // ETA hour
	b = b.AppendUint(0, 6) // ETA minute
	b = b.AppendUint(uint32(v.draught*10+0.5), 8)
	b = b.AppendText(v.dest, 120)
	b = b.AppendUint(0, 1) // DTE
	b = b.AppendUint(0, 1) // spare

	payload, fill := nmea.Armor(b)
	return nmea.BuildVDM(seq, channel, payload, fill)
}

type simAircraft struct {
	icao     string
	callsign string
	lat      float64
	lon      float64
	altFt    float64
	speedKt  float64
	track    float64
	vertRate float64 // ft/min
}

func (a *simAircraft) advance(dt time.Duration) {
	a.lat, a.lon = stepPosition(a.lat, a.lon, a.speedKt, a.track, dt)
	a.altFt += a.vertRate * dt.Minutes()
	if a.altFt < fieldElevationFt {
		a.altFt = fieldElevationFt
		a.vertRate = 0
	}
}

func (a *simAircraft) positionLine() string {
	return sbsLine("3", a.icao, func(f []string) {
		f[11] = fmt.Sprintf("%d", int(a.altFt))
		f[14] = fmt.Sprintf("%.5f", a.lat)
		f[15] = fmt.Sprintf("%.5f", a.lon)
		f[21] = "0"
	})
}

func (a *simAircraft) velocityLine() string {
	return sbsLine("4", a.icao, func(f []string) {
		f[12] = fmt.Sprintf("%.1f", a.speedKt)
		f[13] = fmt.Sprintf("%.1f", a.track)
		f[16] = fmt.Sprintf("%d", int(a.vertRate))
	})
}

func (a *simAircraft) identLine() string {
	return sbsLine("1", a.icao, func(f []string) {
		f[10] = a.callsign
	})
}

// sbsLine assembles one 22-field BaseStation message, filling the
// shared prefix and timestamps and letting the caller set the fields
// its transmission type carries.
func sbsLine(msgType, icao string, set func(f []string)) string {
	now := time.Now().UTC()
	date := now.Format("2006/01/02")
	clock := now.Format("15:04:05.000")

	f := make([]string, 22)
	f[0] = "MSG"
	f[1] = msgType
	f[2], f[3], f[5] = "1", "1", "1"
	f[4] = icao
	f[6], f[7] = date, clock
	f[8], f[9] = date, clock
	set(f)
	return strings.Join(f, ",")
}

// aisFeeder pushes NMEA sentences to a listener over TCP, redialing
// lazily when the connection drops.
type aisFeeder struct {
	addr string
	log  *log.Logger
	conn net.Conn
}

func (f *aisFeeder) send(ctx context.Context, sentences []string) {
	if f.conn == nil {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", f.addr)
		if err != nil {
			f.log.Debug("connect failed", "addr", f.addr, "err", err)
			return
		}
		f.log.Info("connected", "addr", f.addr)
		f.conn = conn
	}
	for _, s := range sentences {
		f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := fmt.Fprintf(f.conn, "%s\r\n", s); err != nil {
			f.log.Warn("write failed", "err", err)
			f.conn.Close()
			f.conn = nil
			return
		}
	}
}

// sbsServer accepts BaseStation clients and broadcasts every message to
// all of them, dropping connections that stop taking writes.
type sbsServer struct {
	log *log.Logger

	mu    sync.Mutex
	conns []net.Conn
}

func (s *sbsServer) listen(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.accept(ctx, ln)
	return nil
}

func (s *sbsServer) accept(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("accept failed", "err", err)
			}
			return
		}
		s.log.Info("client connected", "remote", conn.RemoteAddr())
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
	}
}

func (s *sbsServer) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alive := s.conns[:0]
	for _, conn := range s.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := fmt.Fprintf(conn, "%s\r\n", line); err != nil {
			s.log.Info("client dropped", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	s.conns = alive
}

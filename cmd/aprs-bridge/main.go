package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"aprs-bridge/pkg/ais"
	"aprs-bridge/pkg/aprs"
	"aprs-bridge/pkg/config"
	"aprs-bridge/pkg/dump1090"
	"aprs-bridge/pkg/flights"
	"aprs-bridge/pkg/sbs"
	"aprs-bridge/pkg/types"
	"aprs-bridge/pkg/vessels"
)

// bridgeVersion is carried in both APRS-IS login lines.
const bridgeVersion = "1.1"

const statusInterval = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "aprs-bridge.yaml", "Path to the YAML configuration file")
	aprsServer := pflag.String("aprs-server", "", "Override the APRS-IS server address")
	callsign := pflag.String("callsign", "", "Override the APRS-IS login callsign")
	logLevel := pflag.StringP("log-level", "v", "", "Override the log level (debug, info, warn, error)")
	help := pflag.Bool("help", false, "Display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - AIS and ADS-B to APRS-IS bridge.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Listens for AIS NMEA feeds, follows dump1090, and mirrors both\n")
		fmt.Fprintf(os.Stderr, "as APRS objects onto an APRS-IS server.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *aprsServer != "" {
		cfg.APRS.Server = *aprsServer
	}
	if *callsign != "" {
		cfg.APRS.Callsign = *callsign
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "aprs-bridge",
	})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bridge failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	var frames *aprs.FrameLog
	if cfg.APRS.FrameLog != "" {
		var err error
		frames, err = aprs.NewFrameLog(cfg.APRS.FrameLog, cfg.APRS.FrameLogFormat)
		if err != nil {
			return fmt.Errorf("frame log: %w", err)
		}
		defer frames.Close()
	}

	// Two independent uplink sessions, so a stall on one side cannot
	// hold back the other.
	aisSession := aprs.NewClient(aprs.ClientConfig{
		Addr:             cfg.APRS.Server,
		Callsign:         cfg.APRS.Callsign,
		Passcode:         cfg.APRS.Passcode,
		Tag:              "AIS2APRS",
		Version:          bridgeVersion,
		Filter:           cfg.APRS.Filter,
		MaxPacketsPerSec: cfg.APRS.MaxPacketsPerSec,
	}, frames, logger.WithPrefix("aprs-ais"))

	adsbSession := aprs.NewClient(aprs.ClientConfig{
		Addr:             cfg.APRS.Server,
		Callsign:         cfg.APRS.Callsign,
		Passcode:         cfg.APRS.Passcode,
		Tag:              "ADSB2APRS",
		Version:          bridgeVersion,
		Filter:           cfg.APRS.Filter,
		MaxPacketsPerSec: cfg.APRS.MaxPacketsPerSec,
	}, frames, logger.WithPrefix("aprs-adsb"))

	vesselTracker := vessels.NewManager(vessels.Config{
		CenterLat:      cfg.AIS.CenterLat,
		CenterLon:      cfg.AIS.CenterLon,
		MaxRangeNM:     cfg.AIS.MaxRangeNM,
		TeleportNM:     cfg.AIS.TeleportNM,
		TeleportWindow: time.Duration(cfg.AIS.TeleportTimeSec) * time.Second,
	}, aisSession, logger.WithPrefix("vessels"))

	flightTracker := flights.NewManager(flights.Config{
		HomeLat:         cfg.ADSB.HomeLat,
		HomeLon:         cfg.ADSB.HomeLon,
		AddDistanceMi:   cfg.ADSB.AddDistanceMi,
		ClearDistanceMi: cfg.ADSB.ClearDistanceMi,
		ObjectTTL:       time.Duration(cfg.ADSB.ObjectTTLSec) * time.Second,
		MinUpdateGap:    time.Duration(cfg.ADSB.MinUpdateSec) * time.Second,
		MinMoveMi:       cfg.ADSB.MinMoveMi,
		LandedAltFt:     cfg.ADSB.LandedAltFt,
		LandedWait:      time.Duration(cfg.ADSB.LandedWaitSec) * time.Second,
		LandClearAltFt:  cfg.ADSB.LandClearAltFt,
		AppendSymbolTag: cfg.APRS.AppendSymbolTag,
	}, adsbSession, logger.WithPrefix("flights"))

	listener := ais.NewListener(cfg.AIS.Listen, logger.WithPrefix("ais"))
	sbsClient := sbs.NewClient(cfg.ADSB.SBSAddr, logger.WithPrefix("sbs"))

	var poller *dump1090.Poller
	if cfg.ADSB.JSONURL != "" {
		interval := time.Duration(cfg.ADSB.JSONRefreshSec) * time.Second
		poller = dump1090.NewPoller(cfg.ADSB.JSONURL, interval, logger.WithPrefix("json"))
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker failed", "worker", name, "err", err)
			}
		}()
	}

	wg.Add(1)
	go func() { defer wg.Done(); vesselTracker.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); flightTracker.Run(ctx) }()

	start("ais-listener", func(ctx context.Context) error {
		return listener.Run(ctx, vesselTracker.Reports())
	})

	// SBS positions pick up cached JSON identity on the way to the
	// tracker.
	sbsUpdates := make(chan types.Aircraft, 64)
	start("sbs", func(ctx context.Context) error {
		return sbsClient.Run(ctx, sbsUpdates)
	})
	if poller != nil {
		start("dump1090", poller.Run)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ac := <-sbsUpdates:
				if poller != nil {
					ac = poller.Enrich(ac)
				}
				select {
				case flightTracker.Updates() <- ac:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	start("aprs-ais", aisSession.Run)
	start("aprs-adsb", adsbSession.Run)

	if cfg.AIS.Announce {
		if port := listenPort(cfg.AIS.Listen); port > 0 {
			ais.Announce(ctx, cfg.AIS.ServiceName, port, logger.WithPrefix("dnssd"))
		} else {
			logger.Warn("cannot announce listener, no literal port", "addr", cfg.AIS.Listen)
		}
	}

	logger.Info("bridge up",
		"call", cfg.APRS.Callsign,
		"server", cfg.APRS.Server,
		"ais", cfg.AIS.Listen,
		"sbs", cfg.ADSB.SBSAddr)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			logStatus(logger, vesselTracker, flightTracker, aisSession, adsbSession, poller)
		case <-ctx.Done():
			logger.Info("shutting down")
			wg.Wait()
			return nil
		}
	}
}

// logStatus prints the periodic one-line health summary.
func logStatus(logger *log.Logger, vesselTracker *vessels.Manager, flightTracker *flights.Manager,
	aisSession, adsbSession *aprs.Client, poller *dump1090.Poller) {
	aisSent, aisDropped := aisSession.Stats()
	adsbSent, adsbDropped := adsbSession.Stats()
	kv := []any{
		"vessels", vesselTracker.Count(),
		"flights", flightTracker.Count(),
		"ais_session", aisSession.Connected(),
		"adsb_session", adsbSession.Connected(),
		"ais_sent", aisSent,
		"ais_dropped", aisDropped,
		"adsb_sent", adsbSent,
		"adsb_dropped", adsbDropped,
	}
	if poller != nil {
		kv = append(kv, "json_ok", poller.Healthy(), "json_aircraft", poller.Count())
	}
	logger.Info("status", kv...)
}

// listenPort extracts the TCP port for the DNS-SD announcement.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

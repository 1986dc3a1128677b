package ais

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// NMEA feeders discover the listener over mDNS instead of being
// configured with an IP and port.
const dnssdServiceType = "_nmea-0183._tcp"

// Announce publishes the AIS listener port via DNS-SD. An empty name
// falls back to one derived from the hostname. Failures are logged and
// otherwise ignored; discovery is a convenience, not a requirement.
func Announce(ctx context.Context, name string, port int, logger *log.Logger) {
	if name == "" {
		name = defaultServiceName()
	}
	cfg := dnssd.Config{
		Name: name,
		Type: dnssdServiceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		logger.Warn("dns-sd service setup failed", "err", err)
		return
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		logger.Warn("dns-sd responder setup failed", "err", err)
		return
	}

	if _, err := rp.Add(sv); err != nil {
		logger.Warn("dns-sd announce failed", "err", err)
		return
	}

	logger.Info("announcing AIS listener via dns-sd", "name", cfg.Name, "type", dnssdServiceType, "port", port)

	go func() {
		if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("dns-sd responder stopped", "err", err)
		}
	}()
}

func defaultServiceName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "AIS feed"
	}
	// Some systems return an FQDN; keep the host part.
	hostname, _, _ = strings.Cut(hostname, ".")
	return "AIS feed on " + hostname
}

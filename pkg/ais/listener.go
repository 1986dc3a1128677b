package ais

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/log"

	"aprs-bridge/pkg/nmea"
)

// Listener accepts NMEA feeder connections and decodes their sentences
// into Reports. Receivers like an rtl-ais box or a serial-to-TCP bridge
// connect here and push raw AIVDM lines.
type Listener struct {
	addr string
	log  *log.Logger

	// onListen, when set, receives the bound address once Run is listening.
	onListen func(net.Addr)
}

// NewListener creates a listener for the given bind address.
func NewListener(addr string, logger *log.Logger) *Listener {
	return &Listener{addr: addr, log: logger}
}

// Run accepts feeder connections until the context is canceled. Each
// connection gets its own fragment assembler so multi-sentence groups
// from different feeders cannot interleave.
func (l *Listener) Run(ctx context.Context, reports chan<- Report) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("ais listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l.log.Info("listening for AIS feeds", "addr", l.addr)
	if l.onListen != nil {
		l.onListen(ln.Addr())
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Warn("accept failed", "err", err)
			continue
		}
		l.log.Info("feeder connected", "remote", conn.RemoteAddr())
		go l.handleConn(ctx, conn, reports)
	}
}

// handleConn reads one feeder connection line by line.
func (l *Listener) handleConn(ctx context.Context, conn net.Conn, reports chan<- Report) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	asm := nmea.NewAssembler()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		payload, fill, err := asm.Feed(line)
		switch {
		case err == nil:
		case errors.Is(err, nmea.ErrIncomplete):
			continue
		case errors.Is(err, nmea.ErrNotAIS):
			// Feeders often share a port with GPS sentences.
			continue
		default:
			l.log.Debug("sentence rejected", "err", err, "line", line)
			continue
		}

		rpt, err := Decode(payload, fill)
		if err != nil {
			l.log.Debug("decode failed", "err", err)
			continue
		}

		select {
		case reports <- rpt:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		l.log.Warn("feeder read error", "remote", conn.RemoteAddr(), "err", err)
	}
	l.log.Info("feeder disconnected", "remote", conn.RemoteAddr())
}

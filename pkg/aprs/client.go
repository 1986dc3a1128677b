package aprs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

var ErrNotConnected = errors.New("aprs-is session down")

const (
	reconnectDelay = 3 * time.Second
	dialTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second

	// APRS-IS servers throttle abusive clients; stay well under.
	maxPacketsPerSec = 5
)

// ClientConfig carries the settings of one APRS-IS uplink session.
type ClientConfig struct {
	Addr     string
	Callsign string
	Passcode int
	Tag      string // software name in the login line, e.g. "AIS2APRS"
	Version  string
	Filter   string // server-side filter, e.g. "m/500"

	// MaxPacketsPerSec caps the uplink rate; zero means the default.
	MaxPacketsPerSec int
}

// Client maintains one login session to an APRS-IS server. Packets are
// dropped while the session is down rather than queued; trackers send
// fresh state often enough that a backlog would only publish stale
// positions.
type Client struct {
	cfg     ClientConfig
	log     *log.Logger
	limiter *rate.Limiter
	frames  *FrameLog

	mu      sync.Mutex
	conn    net.Conn
	sent    int64
	dropped int64
}

// NewClient creates a session client. frames may be nil to disable the
// sent-frame log.
func NewClient(cfg ClientConfig, frames *FrameLog, logger *log.Logger) *Client {
	if cfg.MaxPacketsPerSec == 0 {
		cfg.MaxPacketsPerSec = maxPacketsPerSec
	}
	return &Client{
		cfg:     cfg,
		log:     logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxPacketsPerSec), cfg.MaxPacketsPerSec),
		frames:  frames,
	}
}

// Run dials, logs in and holds the session open, reconnecting with a
// fixed delay until the context is canceled.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("session ended, reconnecting", "server", c.cfg.Addr, "in", reconnectDelay, "err", err)

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session runs one connect/login/read cycle.
func (c *Client) session(ctx context.Context) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.disconnect(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// No packet goes out before the login line.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	login := LoginLine(c.cfg.Callsign, c.cfg.Passcode, c.cfg.Tag, c.cfg.Version, c.cfg.Filter)
	if _, err := io.WriteString(conn, login); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("logged in to APRS-IS", "server", c.cfg.Addr, "call", c.cfg.Callsign, "vers", c.cfg.Tag)

	// The server mostly sends keepalive comments; drain them so the
	// connection death is noticed promptly.
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			c.log.Debug("server comment", "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// disconnect clears the shared conn if it is still the current one.
func (c *Client) disconnect(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// Send publishes one information field as a TNC2 frame. While the
// session is down the packet is dropped, never queued. Over-rate
// packets are silently dropped. The lock serializes writers so a
// mid-send failure cannot tear a concurrent caller's packet.
func (c *Client) Send(info string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.dropped++
		return ErrNotConnected
	}
	if !c.limiter.Allow() {
		c.dropped++
		c.log.Debug("rate cap hit, dropping packet", "info", info)
		return nil
	}

	frame := fmt.Sprintf("%s>APRS,TCPIP*:%s\n", c.cfg.Callsign, info)
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(c.conn, frame); err != nil {
		// Close unblocks the session reader, which triggers reconnect.
		c.conn.Close()
		c.conn = nil
		c.dropped++
		return fmt.Errorf("send: %w", err)
	}
	c.sent++

	if c.frames != nil {
		c.frames.Append(frame)
	}
	return nil
}

// Connected reports whether the session is logged in.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stats returns the packets sent and dropped since startup.
func (c *Client) Stats() (sent, dropped int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent, c.dropped
}

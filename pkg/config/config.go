// Package config loads the bridge configuration: built-in defaults
// overlaid by an optional YAML file. Flag overrides are applied by the
// caller after Load.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete bridge configuration.
type Config struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	AIS  AISConfig  `yaml:"ais"`
	ADSB ADSBConfig `yaml:"adsb"`
	APRS APRSConfig `yaml:"aprs"`
}

// AISConfig covers the NMEA listener and the vessel tracker.
type AISConfig struct {
	// Listen is the TCP address AIS feeders connect to.
	Listen string `yaml:"listen"`

	// Announce publishes the listener via DNS-SD (_nmea-0183._tcp).
	Announce bool `yaml:"announce"`

	// ServiceName overrides the advertised instance name; empty derives
	// one from the hostname.
	ServiceName string `yaml:"service_name"`

	// CenterLat/CenterLon anchor the range and teleport filters.
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`

	// MaxRangeNM drops fixes further than this from the center.
	MaxRangeNM float64 `yaml:"max_range_nm"`

	// TeleportNM and TeleportTimeSec reject a jump larger than
	// TeleportNM arriving within TeleportTimeSec of the previous fix.
	TeleportNM      float64 `yaml:"teleport_nm"`
	TeleportTimeSec int     `yaml:"teleport_time_sec"`
}

// ADSBConfig covers the SBS client, the JSON poller and the flight
// tracker.
type ADSBConfig struct {
	// SBSAddr is the dump1090 BaseStation (port 30003) address.
	SBSAddr string `yaml:"sbs_addr"`

	// JSONURL is the dump1090 aircraft list; empty disables the poller.
	JSONURL string `yaml:"json_url"`

	// JSONRefreshSec is the poll interval.
	JSONRefreshSec int `yaml:"json_refresh_sec"`

	// HomeLat/HomeLon anchor the add and clear radii.
	HomeLat float64 `yaml:"home_lat"`
	HomeLon float64 `yaml:"home_lon"`

	// AddDistanceMi admits aircraft; ClearDistanceMi expires them. The
	// gap keeps boundary riders from flapping.
	AddDistanceMi   float64 `yaml:"add_distance_mi"`
	ClearDistanceMi float64 `yaml:"clear_distance_mi"`

	// ObjectTTLSec expires aircraft silent for this long.
	ObjectTTLSec int `yaml:"object_ttl_sec"`

	// MinUpdateSec and MinMoveMi throttle position re-announcements.
	MinUpdateSec int     `yaml:"min_update_sec"`
	MinMoveMi    float64 `yaml:"min_move_mi"`

	// LandedAltFt held for LandedWaitSec suppresses publication;
	// climbing above LandClearAltFt resumes it.
	LandedAltFt    float64 `yaml:"landed_alt_ft"`
	LandedWaitSec  int     `yaml:"landed_wait_sec"`
	LandClearAltFt float64 `yaml:"land_clear_alt_ft"`
}

// APRSConfig covers both uplink sessions and the shared packet options.
type APRSConfig struct {
	// Server is the APRS-IS endpoint, typically a local IS server.
	Server string `yaml:"server"`

	// Callsign and Passcode form the login. Passcode -1 logs in
	// unverified.
	Callsign string `yaml:"callsign"`
	Passcode int    `yaml:"passcode"`

	// Filter is the server-side filter requested at login.
	Filter string `yaml:"filter"`

	// MaxPacketsPerSec caps each session's uplink rate.
	MaxPacketsPerSec int `yaml:"max_packets_per_sec"`

	// AppendSymbolTag adds the symbol word (PLANE, HELI, ...) to
	// aircraft comments.
	AppendSymbolTag bool `yaml:"append_symbol_tag"`

	// FrameLog appends every uplinked frame to this file; empty
	// disables. FrameLogFormat is the strftime stamp preceding each
	// frame.
	FrameLog       string `yaml:"frame_log"`
	FrameLogFormat string `yaml:"frame_log_format"`
}

// Default returns the deployed configuration: a Buffalo-area receiver
// feeding a local IS server.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		AIS: AISConfig{
			Listen:          "0.0.0.0:10110",
			CenterLat:       42.9,
			CenterLon:       -78.9,
			MaxRangeNM:      250,
			TeleportNM:      150,
			TeleportTimeSec: 900,
		},
		ADSB: ADSBConfig{
			SBSAddr:         "localhost:30003",
			JSONURL:         "http://localhost:8080/data.json",
			JSONRefreshSec:  5,
			HomeLat:         42.9405,
			HomeLon:         -78.7322,
			AddDistanceMi:   35,
			ClearDistanceMi: 40,
			ObjectTTLSec:    300,
			MinUpdateSec:    5,
			MinMoveMi:       0.5,
			LandedAltFt:     1000,
			LandedWaitSec:   180,
			LandClearAltFt:  1500,
		},
		APRS: APRSConfig{
			Server:           "127.0.0.1:14580",
			Callsign:         "N2UGS-10",
			Passcode:         -1,
			Filter:           "m/500",
			MaxPacketsPerSec: 5,
			AppendSymbolTag:  true,
			FrameLogFormat:   "%Y-%m-%d %H:%M:%S",
		},
	}
}

// Load reads configuration from a YAML file over the defaults. A
// missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the bridge cannot start with.
func (c *Config) Validate() error {
	if c.APRS.Server == "" {
		return fmt.Errorf("aprs server not set")
	}
	if c.APRS.Callsign == "" {
		return fmt.Errorf("aprs callsign not set")
	}
	if c.APRS.MaxPacketsPerSec < 1 {
		return fmt.Errorf("aprs max_packets_per_sec must be at least 1")
	}
	if c.AIS.Listen == "" {
		return fmt.Errorf("ais listen address not set")
	}
	if c.ADSB.SBSAddr == "" {
		return fmt.Errorf("adsb sbs_addr not set")
	}
	if c.ADSB.JSONURL != "" && c.ADSB.JSONRefreshSec < 1 {
		return fmt.Errorf("adsb json_refresh_sec must be at least 1")
	}
	if err := checkLatLon("ais center", c.AIS.CenterLat, c.AIS.CenterLon); err != nil {
		return err
	}
	if err := checkLatLon("adsb home", c.ADSB.HomeLat, c.ADSB.HomeLon); err != nil {
		return err
	}
	if c.ADSB.ClearDistanceMi < c.ADSB.AddDistanceMi {
		return fmt.Errorf("adsb clear_distance_mi %.1f below add_distance_mi %.1f",
			c.ADSB.ClearDistanceMi, c.ADSB.AddDistanceMi)
	}
	return nil
}

func checkLatLon(what string, lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%s latitude %.4f out of range", what, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%s longitude %.4f out of range", what, lon)
	}
	return nil
}

// Package ais decodes AIS messages carried in AIVDM/AIVDO sentences and
// serves them over TCP to the vessel tracker. Only the message types that
// feed the APRS gateway are handled; everything else is reported as
// unsupported so the listener can count it and move on.
package ais

import (
	"errors"
	"fmt"

	"aprs-bridge/pkg/nmea"
)

var (
	ErrShort       = errors.New("payload too short")
	ErrUnsupported = errors.New("unsupported message type")
	ErrBadPosition = errors.New("position not available")
)

// Report represents one decoded AIS message.
type Report struct {
	MsgType int
	MMSI    uint32

	// Position report fields (types 1-3, 4, 18, 19, 27)
	Lat     float64
	Lon     float64
	Speed   float64 // knots over ground
	Course  float64 // degrees true
	Heading float64 // degrees true

	// Static report fields (types 5 and 24 part A)
	Name string

	HasPosition bool
	HasSpeed    bool
	HasCourse   bool
	HasHeading  bool
	HasName     bool
}

const (
	posScale = 600000.0 // 1/10000 arc minute
	lrScale  = 600.0    // 1/10 arc minute

	// Raw values at or beyond 181/91 degrees mean "not available".
	rawLonLimit = 181 * 600000
	rawLatLimit = 91 * 600000

	// Long-range reports use a dedicated not-available pattern.
	lrSentinel = 0x1FFFF

	minPositionBits  = 168
	minLongRangeBits = 96
	minVoyageBits    = 424
	minStaticBits    = 160
)

// Field offsets differ between class A (types 1-3) and class B (18/19)
// position reports.
type posLayout struct {
	sog, lon, lat, cog, hdg int
}

var (
	classALayout = posLayout{sog: 50, lon: 61, lat: 89, cog: 116, hdg: 128}
	classBLayout = posLayout{sog: 46, lon: 57, lat: 85, cog: 112, hdg: 124}
)

// Decode unarmors an assembled payload and decodes it into a Report.
func Decode(payload string, fill int) (Report, error) {
	bits, err := nmea.Unarmor(payload)
	if err != nil {
		return Report{}, err
	}
	if fill > 0 && fill < 6 && fill <= len(bits) {
		bits = bits[:len(bits)-fill]
	}

	msgType, ok := bits.Uint(0, 6)
	if !ok {
		return Report{}, ErrShort
	}
	mmsi, ok := bits.Uint(8, 30)
	if !ok {
		return Report{}, ErrShort
	}

	r := Report{MsgType: int(msgType), MMSI: mmsi}
	switch msgType {
	case 1, 2, 3:
		err = decodePosition(&r, bits, classALayout)
	case 18, 19:
		err = decodePosition(&r, bits, classBLayout)
	case 4:
		err = decodeBaseStation(&r, bits)
	case 5:
		err = decodeVoyage(&r, bits)
	case 24:
		err = decodeStaticPartA(&r, bits)
	case 27:
		err = decodeLongRange(&r, bits)
	default:
		err = fmt.Errorf("%w: type %d", ErrUnsupported, msgType)
	}
	if err != nil {
		return Report{}, err
	}
	return r, nil
}

// decodePosition handles the class A and class B position reports.
//
// Class A (types 1-3):   sog@50:10  lon@61:28  lat@89:27  cog@116:12  hdg@128:9
// Class B (types 18/19): sog@46:10  lon@57:28  lat@85:27  cog@112:12  hdg@124:9
func decodePosition(r *Report, bits nmea.Bits, l posLayout) error {
	if len(bits) < minPositionBits {
		return ErrShort
	}

	lonRaw, _ := bits.Int(l.lon, 28)
	latRaw, _ := bits.Int(l.lat, 27)
	if abs32(lonRaw) >= rawLonLimit || abs32(latRaw) >= rawLatLimit {
		return ErrBadPosition
	}
	r.Lon = float64(lonRaw) / posScale
	r.Lat = float64(latRaw) / posScale
	r.HasPosition = true

	if sog, ok := bits.Uint(l.sog, 10); ok && sog != 1023 {
		r.Speed = float64(sog) / 10
		r.HasSpeed = true
	}
	if cog, ok := bits.Uint(l.cog, 12); ok && cog < 3600 {
		r.Course = float64(cog) / 10
		r.HasCourse = true
	}
	if hdg, ok := bits.Uint(l.hdg, 9); ok && hdg != 511 {
		r.Heading = float64(hdg)
		r.HasHeading = true
	}
	return nil
}

// decodeBaseStation handles type 4 UTC/position reports from shore
// stations. Base stations report no motion fields: lon@79:28 lat@107:27.
func decodeBaseStation(r *Report, bits nmea.Bits) error {
	if len(bits) < minPositionBits {
		return ErrShort
	}

	lonRaw, _ := bits.Int(79, 28)
	latRaw, _ := bits.Int(107, 27)
	if abs32(lonRaw) >= rawLonLimit || abs32(latRaw) >= rawLatLimit {
		return ErrBadPosition
	}
	r.Lon = float64(lonRaw) / posScale
	r.Lat = float64(latRaw) / posScale
	r.HasPosition = true
	return nil
}

// decodeLongRange handles type 27 reports relayed by satellite. The
// position is coarse (1/10 arc minute): lon@44:18 lat@62:17 sog@79:6
// cog@85:9.
func decodeLongRange(r *Report, bits nmea.Bits) error {
	if len(bits) < minLongRangeBits {
		return ErrShort
	}

	// The not-available pattern is checked before sign extension.
	lonU, _ := bits.Uint(44, 18)
	latU, _ := bits.Uint(62, 17)
	if lonU == lrSentinel || latU == lrSentinel {
		return ErrBadPosition
	}
	lonRaw, _ := bits.Int(44, 18)
	latRaw, _ := bits.Int(62, 17)
	r.Lon = float64(lonRaw) / lrScale
	r.Lat = float64(latRaw) / lrScale
	r.HasPosition = true

	if sog, ok := bits.Uint(79, 6); ok && sog != 63 {
		r.Speed = float64(sog)
		r.HasSpeed = true
	}
	if cog, ok := bits.Uint(85, 9); ok && cog != 511 {
		r.Course = float64(cog)
		r.HasCourse = true
	}
	return nil
}

// decodeVoyage handles type 5 static and voyage data. Only the vessel
// name matters to the gateway: name@112:120.
func decodeVoyage(r *Report, bits nmea.Bits) error {
	if len(bits) < minVoyageBits {
		return ErrShort
	}
	r.Name = bits.Text(112, 120)
	r.HasName = r.Name != ""
	return nil
}

// decodeStaticPartA handles type 24 class B static data. Part A carries
// the name at 40:120; part B carries dimensions and is not used.
func decodeStaticPartA(r *Report, bits nmea.Bits) error {
	if len(bits) < minStaticBits {
		return ErrShort
	}
	part, _ := bits.Uint(38, 2)
	if part != 0 {
		return fmt.Errorf("%w: type 24 part %d", ErrUnsupported, part)
	}
	r.Name = bits.Text(40, 120)
	r.HasName = r.Name != ""
	return nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Package aprs formats APRS object packets and maintains login sessions
// to an APRS-IS server. Vessels and aircraft are both published as named
// objects so they show up on maps without needing their own callsigns.
package aprs

import (
	"fmt"
	"strings"
	"time"

	"aprs-bridge/pkg/geo"
	"aprs-bridge/pkg/types"
)

// Objects on APRS-IS carry a fixed 9 character name.
const objectNameLen = 9

// LoginLine builds the APRS-IS logon sentence. The passcode may be -1
// for receive-only servers that accept unverified logins.
func LoginLine(call string, passcode int, tag, version, filter string) string {
	line := fmt.Sprintf("user %s pass %d vers %s %s", call, passcode, tag, version)
	if filter != "" {
		line += " filter " + filter
	}
	return line + "\n"
}

// ObjectName normalizes a callsign or hex identifier into an object
// name: upper case, [A-Z0-9] only, truncated and space-padded to 9.
func ObjectName(id string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > objectNameLen {
		name = name[:objectNameLen]
	}
	return fmt.Sprintf("%-*s", objectNameLen, name)
}

// VesselObjectName is the 9-digit MMSI form used for AIS contacts.
func VesselObjectName(mmsi uint32) string {
	return fmt.Sprintf("%09d", mmsi)
}

// Object holds everything needed to format one APRS object packet.
type Object struct {
	Name   string // exactly 9 characters
	Time   time.Time
	Lat    float64
	Lon    float64
	Table  byte
	Code   byte
	Killed bool

	Course    float64
	Speed     float64 // knots
	Altitude  float64 // feet
	HasCourse bool
	HasSpeed  bool
	HasAlt    bool

	Comment string
}

// Encode renders the object into the information field of an APRS
// packet: flag, name, live/killed marker, DDHHMMz timestamp, position,
// symbol, optional course/speed and altitude extensions, comment.
func (o Object) Encode() string {
	var b strings.Builder

	b.WriteByte(';')
	b.WriteString(o.Name)
	if o.Killed {
		b.WriteByte('_')
	} else {
		b.WriteByte('*')
	}
	b.WriteString(o.Time.UTC().Format("021504z"))

	b.WriteString(geo.LatDM(o.Lat))
	b.WriteByte(o.Table)
	b.WriteString(geo.LonDM(o.Lon))
	b.WriteByte(o.Code)

	if o.HasCourse || o.HasSpeed {
		// Course 0 means unknown on the wire; due north is sent as 360.
		cse := 0
		if o.HasCourse {
			cse = int(o.Course)
			for cse < 1 {
				cse += 360
			}
			for cse > 360 {
				cse -= 360
			}
		}
		spd := int(o.Speed)
		if spd < 0 {
			spd = 0
		} else if spd > 999 {
			spd = 999
		}
		fmt.Fprintf(&b, "%03d/%03d", cse, spd)
	}

	if o.HasAlt {
		alt := int(o.Altitude)
		if alt < -99999 {
			alt = -99999
		} else if alt > 999999 {
			alt = 999999
		}
		fmt.Fprintf(&b, "/A=%06d", alt)
	}

	if o.Comment != "" {
		b.WriteByte(' ')
		b.WriteString(o.Comment)
	}
	return b.String()
}

// VesselComment builds the human-readable tail of a vessel object.
// Unknown speed and course read as zero rather than being omitted.
func VesselComment(v types.Vessel) string {
	var b strings.Builder
	if v.Name != "" {
		fmt.Fprintf(&b, "NAME %s ", v.Name)
	}
	sog, cog := 0, 0
	if v.HasSpeed {
		sog = int(v.Speed)
	}
	if v.HasCourse {
		cog = int(v.Course)
	}
	fmt.Fprintf(&b, "SOG %dkt COG %03d", sog, cog)
	if v.HasHeading {
		fmt.Fprintf(&b, " HDG %d", int(v.Heading))
	}
	fmt.Fprintf(&b, " MMSI %09d", v.MMSI)
	return b.String()
}

// MakeVesselObject formats one AIS contact as a live APRS object.
func MakeVesselObject(v types.Vessel, now time.Time) string {
	table, code, _ := VesselSymbol(v.MsgType)
	o := Object{
		Name:      VesselObjectName(v.MMSI),
		Time:      now,
		Lat:       v.Lat,
		Lon:       v.Lon,
		Table:     table,
		Code:      code,
		Course:    v.Course,
		Speed:     v.Speed,
		HasCourse: v.HasCourse,
		HasSpeed:  v.HasSpeed,
		Comment:   VesselComment(v),
	}
	return o.Encode()
}

// AircraftComment builds the human-readable tail of an aircraft object.
// The DEL marker on kill packets makes deletions greppable in raw feeds.
func AircraftComment(ac types.Aircraft, symTag string, killed bool) string {
	var parts []string
	if ac.HasTrack || ac.HasSpeed || ac.HasAltitude {
		parts = append(parts, fmt.Sprintf("TRK %03d GS %dkt ALT %dft",
			int(ac.Track), int(ac.Speed), int(ac.Altitude)))
	}
	if ac.Callsign != "" {
		parts = append(parts, "FLT "+ac.Callsign)
	}
	parts = append(parts, "ICAO "+ac.ICAO)
	if symTag != "" {
		parts = append(parts, "SYM "+symTag)
	}
	if killed {
		parts = append(parts, "DEL")
	}
	return strings.Join(parts, " ")
}

// MakeAircraftObject formats one tracked aircraft as an APRS object
// under the given name. appendTag controls the SYM comment marker.
func MakeAircraftObject(name string, ac types.Aircraft, now time.Time, appendTag, killed bool) string {
	table, code, tag := AircraftSymbol(ac.Category, ac.AcType)
	if !appendTag {
		tag = ""
	}
	o := Object{
		Name:      name,
		Time:      now,
		Lat:       ac.Lat,
		Lon:       ac.Lon,
		Table:     table,
		Code:      code,
		Killed:    killed,
		Course:    ac.Track,
		Speed:     ac.Speed,
		Altitude:  ac.Altitude,
		HasCourse: ac.HasTrack,
		HasSpeed:  ac.HasSpeed,
		HasAlt:    ac.HasAltitude,
		Comment:   AircraftComment(ac, tag, killed),
	}
	return o.Encode()
}

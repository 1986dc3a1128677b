package types

import "time"

// Aircraft carries one ADS-B update or tracked contact, keyed by ICAO hex.
type Aircraft struct {
	ICAO      string
	Callsign  string
	Category  string // emitter category from dump1090, e.g. "A1", "B2"
	AcType    string // ICAO type designator, e.g. "B738"
	Lat       float64
	Lon       float64
	Altitude  float64 // feet
	Speed     float64 // knots over ground
	Track     float64 // degrees true
	Timestamp time.Time

	// Track which fields are valid in this update
	HasCallsign bool
	HasCategory bool
	HasType     bool
	HasPosition bool
	HasAltitude bool
	HasSpeed    bool
	HasTrack    bool
}

// Merge copies the valid fields of an update into the contact.
func (a *Aircraft) Merge(u Aircraft) {
	if u.HasCallsign {
		a.Callsign = u.Callsign
		a.HasCallsign = true
	}
	if u.HasCategory {
		a.Category = u.Category
		a.HasCategory = true
	}
	if u.HasType {
		a.AcType = u.AcType
		a.HasType = true
	}
	if u.HasPosition {
		a.Lat = u.Lat
		a.Lon = u.Lon
		a.HasPosition = true
	}
	if u.HasAltitude {
		a.Altitude = u.Altitude
		a.HasAltitude = true
	}
	if u.HasSpeed {
		a.Speed = u.Speed
		a.HasSpeed = true
	}
	if u.HasTrack {
		a.Track = u.Track
		a.HasTrack = true
	}
	a.Timestamp = u.Timestamp
}

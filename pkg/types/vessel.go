package types

import "time"

// Vessel is one AIS contact, keyed by MMSI.
type Vessel struct {
	MMSI     uint32
	Name     string
	Lat      float64
	Lon      float64
	Speed    float64 // knots over ground
	Course   float64 // degrees true
	Heading  float64 // degrees true
	MsgType  int
	Symbol   string // APRS table+code pair, e.g. "/s"
	Class    string // human description, e.g. "Ship (Class A)"
	LastSeen time.Time

	HasSpeed   bool
	HasCourse  bool
	HasHeading bool
}

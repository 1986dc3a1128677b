package aprs

import "strings"

// Type designator prefixes used when no emitter category was received.
// Balloons are checked first so HAB does not fall into the rotorcraft
// catch-all.
var (
	balloonPrefixes = []string{"BAL", "BLN", "HAB"}
	gliderPrefixes  = []string{"GLID", "DG", "ASW", "ASK", "LS", "G1", "G2", "G3"}
	heliPrefixes    = []string{"EC", "UH", "AH", "CH", "MH", "R22", "R44", "BELL", "BK", "H"}
)

// AircraftSymbol picks the APRS symbol for an aircraft from its ADS-B
// emitter category, falling back to type designator prefixes. The tag
// is the short label appended to object comments.
func AircraftSymbol(category, acType string) (table, code byte, tag string) {
	switch strings.ToUpper(strings.TrimSpace(category)) {
	case "A7":
		return '/', 'X', "HELI"
	case "B2":
		return '/', 'O', "BALLOON"
	case "B1", "B4":
		return '/', 'g', "GLIDER"
	case "":
		// fall through to the type heuristics
	default:
		return '/', '^', "PLANE"
	}

	t := strings.ToUpper(strings.TrimSpace(acType))
	for _, p := range balloonPrefixes {
		if strings.HasPrefix(t, p) {
			return '/', 'O', "BALLOON"
		}
	}
	for _, p := range gliderPrefixes {
		if strings.HasPrefix(t, p) {
			return '/', 'g', "GLIDER"
		}
	}
	for _, p := range heliPrefixes {
		if strings.HasPrefix(t, p) {
			return '/', 'X', "HELI"
		}
	}
	return '/', '^', "PLANE"
}

// VesselSymbol picks the APRS symbol for an AIS contact by message
// type. Base stations get the antenna symbol, everything else a ship.
func VesselSymbol(msgType int) (table, code byte, class string) {
	switch msgType {
	case 4:
		return '/', 'r', "Base station"
	case 18, 19:
		return '/', 's', "Ship (Class B)"
	case 27:
		return '/', 's', "Ship (long range)"
	default:
		return '/', 's', "Ship (Class A)"
	}
}

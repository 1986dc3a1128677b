package ais

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprs-bridge/pkg/nmea"
)

// decodeLine runs one or more sentences through an assembler and decodes
// the assembled payload.
func decodeLine(t *testing.T, lines ...string) (Report, error) {
	t.Helper()
	asm := nmea.NewAssembler()
	for i, line := range lines {
		payload, fill, err := asm.Feed(line)
		if i < len(lines)-1 {
			require.ErrorIs(t, err, nmea.ErrIncomplete)
			continue
		}
		require.NoError(t, err)
		return Decode(payload, fill)
	}
	t.Fatal("no sentences")
	return Report{}, nil
}

func TestDecodeClassAPosition(t *testing.T) {
	r, err := decodeLine(t, "!AIVDM,1,1,,B,15M:Ih001wrFuMpHRS08uo>t0000,0*5C")
	require.NoError(t, err)

	assert.Equal(t, 1, r.MsgType)
	assert.Equal(t, uint32(366123456), r.MMSI)
	require.True(t, r.HasPosition)
	assert.InDelta(t, -78.8703, r.Lon, 1e-6)
	assert.InDelta(t, 42.8864, r.Lat, 1e-6)
	require.True(t, r.HasSpeed)
	assert.InDelta(t, 12.7, r.Speed, 1e-9)
	require.True(t, r.HasCourse)
	assert.InDelta(t, 229.5, r.Course, 1e-9)
	require.True(t, r.HasHeading)
	assert.InDelta(t, 231, r.Heading, 1e-9)
	assert.False(t, r.HasName)
}

func TestDecodeMotionSentinels(t *testing.T) {
	// SOG 1023, COG 3600 and heading 511 all mean "not available".
	r, err := decodeLine(t, "!AIVDM,1,1,,A,15M2oP@0?wJFli0HTp4>4?wp0000,0*09")
	require.NoError(t, err)

	require.True(t, r.HasPosition)
	assert.InDelta(t, -78.90, r.Lon, 1e-6)
	assert.InDelta(t, 42.95, r.Lat, 1e-6)
	assert.False(t, r.HasSpeed)
	assert.False(t, r.HasCourse)
	assert.False(t, r.HasHeading)
}

func TestDecodePositionSentinels(t *testing.T) {
	// 181 degrees east, 91 degrees north: the not-available position.
	_, err := decodeLine(t, "!AIVDM,1,1,,A,15M2oPP000<tSF0l4Q@00?wp0000,0*1E")
	assert.ErrorIs(t, err, ErrBadPosition)
}

func TestDecodeBaseStation(t *testing.T) {
	r, err := decodeLine(t, "!AIVDM,1,1,,B,403OvjAvb;fN?rGUs@HTQk000000,0*4D")
	require.NoError(t, err)

	assert.Equal(t, 4, r.MsgType)
	assert.Equal(t, uint32(3669705), r.MMSI)
	require.True(t, r.HasPosition)
	assert.InDelta(t, -78.7322, r.Lon, 1e-6)
	assert.InDelta(t, 42.9405, r.Lat, 1e-6)
	assert.False(t, r.HasSpeed)
	assert.False(t, r.HasCourse)
	assert.False(t, r.HasHeading)
}

func TestDecodeClassBPosition(t *testing.T) {
	r, err := decodeLine(t, "!AIVDM,1,1,,A,B52ulL@0@>USU@6;Tb@o4e000000,0*6E")
	require.NoError(t, err)

	assert.Equal(t, 18, r.MsgType)
	assert.Equal(t, uint32(338654321), r.MMSI)
	require.True(t, r.HasPosition)
	assert.InDelta(t, -79.0312, r.Lon, 1e-6)
	assert.InDelta(t, 43.2071, r.Lat, 1e-6)
	assert.InDelta(t, 6.4, r.Speed, 1e-9)
	assert.InDelta(t, 88.1, r.Course, 1e-9)
	assert.InDelta(t, 90, r.Heading, 1e-9)
}

func TestDecodeLongRange(t *testing.T) {
	r, err := decodeLine(t, "!AIVDM,1,1,,B,K9NSD?P=<e3;L7>T,0*1C")
	require.NoError(t, err)

	assert.Equal(t, 27, r.MsgType)
	assert.Equal(t, uint32(636015678), r.MMSI)
	require.True(t, r.HasPosition)
	assert.InDelta(t, -76.5, r.Lon, 1e-6)
	assert.InDelta(t, 43.4, r.Lat, 1e-6)
	require.True(t, r.HasSpeed)
	assert.InDelta(t, 14, r.Speed, 1e-9)
	require.True(t, r.HasCourse)
	assert.InDelta(t, 233, r.Course, 1e-9)
	assert.False(t, r.HasHeading)
}

func TestDecodeLongRangeSentinel(t *testing.T) {
	_, err := decodeLine(t, "!AIVDM,1,1,,B,K9NSD?h7wwk;LOwt,0*3E")
	assert.ErrorIs(t, err, ErrBadPosition)
}

func TestDecodeVoyageName(t *testing.T) {
	r, err := decodeLine(t,
		"!AIVDM,2,1,3,A,55M:Ih01i?K9L@GC7OPEHE:0LUHDp0000000000000000000000000000000,0*52",
		"!AIVDM,2,2,3,A,00000000000,2*27",
	)
	require.NoError(t, err)

	assert.Equal(t, 5, r.MsgType)
	assert.Equal(t, uint32(366123456), r.MMSI)
	require.True(t, r.HasName)
	assert.Equal(t, "EVER GIVEN", r.Name)
	assert.False(t, r.HasPosition)
}

func TestDecodeStaticPartA(t *testing.T) {
	r, err := decodeLine(t, "!AIVDM,1,1,,B,H52ulLA<D5>1@PF0@5T000000000,0*4B")
	require.NoError(t, err)

	assert.Equal(t, 24, r.MsgType)
	assert.Equal(t, uint32(338654321), r.MMSI)
	require.True(t, r.HasName)
	assert.Equal(t, "SEAS THE DAY", r.Name)
}

func TestDecodeStaticPartB(t *testing.T) {
	_, err := decodeLine(t, "!AIVDM,1,1,,B,H52ulLD000000000000000000000,0*4B")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeUnsupportedType(t *testing.T) {
	_, err := decodeLine(t, "!AIVDM,1,1,,A,91aucih000000000000000000000,0*68")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeShortPayload(t *testing.T) {
	// A type 1 report truncated to 100 bits.
	bits := make(nmea.Bits, 100)
	bits[5] = 1
	payload, fill := nmea.Armor(bits)
	_, err := Decode(payload, fill)
	assert.ErrorIs(t, err, ErrShort)
}

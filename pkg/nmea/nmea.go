// Package nmea handles the sentence layer of an AIS feed: checksum
// validation, 6-bit payload armoring, fragment reassembly, and positional
// bit-field extraction. Message semantics live in pkg/ais.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotAIS    = errors.New("not an AIVDM/AIVDO sentence")
	ErrMalformed = errors.New("malformed sentence")
	ErrChecksum  = errors.New("checksum mismatch")
	// ErrIncomplete means the sentence was consumed into a fragment buffer
	// and no full payload is available yet.
	ErrIncomplete = errors.New("fragment sequence incomplete")
)

// Checksum is the NMEA checksum: XOR of all bytes between '!' and '*'.
func Checksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// Verify checks the trailing "*hh" checksum of a complete sentence.
// The hex digits compare case-insensitively.
func Verify(line string) error {
	if len(line) == 0 || line[0] != '!' {
		return ErrMalformed
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 != len(line) {
		return ErrMalformed
	}
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return ErrMalformed
	}
	if Checksum(line[1:star]) != byte(want) {
		return ErrChecksum
	}
	return nil
}

// Bits is an unpacked AIS payload, one byte per bit.
type Bits []byte

// Uint extracts an unsigned big-endian field of the given width.
// Reports false if the field runs past the end of the payload.
func (b Bits) Uint(off, width int) (uint32, bool) {
	if off < 0 || width < 1 || width > 32 || off+width > len(b) {
		return 0, false
	}
	var v uint32
	for i := off; i < off+width; i++ {
		v = v<<1 | uint32(b[i])
	}
	return v, true
}

// Int extracts a two's-complement signed field.
func (b Bits) Int(off, width int) (int32, bool) {
	v, ok := b.Uint(off, width)
	if !ok {
		return 0, false
	}
	if width < 32 && v&(1<<uint(width-1)) != 0 {
		v |= ^uint32(0) << uint(width)
	}
	return int32(v), true
}

// Text decodes a 6-bit character field. '@' terminates the string and
// surrounding whitespace is trimmed, per the AIS character set.
func (b Bits) Text(off, width int) string {
	var sb strings.Builder
	for i := off; i+6 <= off+width && i+6 <= len(b); i += 6 {
		v, _ := b.Uint(i, 6)
		c := byte(v)
		if v < 32 {
			c = byte(v) + 64
		}
		if c == '@' {
			break
		}
		sb.WriteByte(c)
	}
	return strings.TrimSpace(sb.String())
}

// AppendUint appends an unsigned big-endian field, the writer
// counterpart of Uint.
func (b Bits) AppendUint(v uint32, width int) Bits {
	for shift := width - 1; shift >= 0; shift-- {
		b = append(b, byte((v>>uint(shift))&1))
	}
	return b
}

// AppendInt appends a signed two's-complement field.
func (b Bits) AppendInt(v int32, width int) Bits {
	mask := ^uint32(0)
	if width < 32 {
		mask = 1<<uint(width) - 1
	}
	return b.AppendUint(uint32(v)&mask, width)
}

// AppendText appends a 6-bit character field, padding with '@' to the
// full width.
func (b Bits) AppendText(s string, width int) Bits {
	s = strings.ToUpper(s)
	for i := 0; i < width/6; i++ {
		c := byte('@')
		if i < len(s) {
			c = s[i]
		}
		b = b.AppendUint(uint32(c%64), 6)
	}
	return b
}

// Unarmor expands 6-bit ASCII armoring into a bit buffer.
// '0'..'W' map to 0..39 and '`'..'w' to 40..63.
func Unarmor(payload string) (Bits, error) {
	bits := make(Bits, 0, len(payload)*6)
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		var v byte
		switch {
		case c >= '0' && c <= 'W':
			v = c - '0'
		case c >= '`' && c <= 'w':
			v = c - '`' + 40
		default:
			return nil, fmt.Errorf("%w: armor byte %q", ErrMalformed, c)
		}
		for shift := 5; shift >= 0; shift-- {
			bits = append(bits, (v>>uint(shift))&1)
		}
	}
	return bits, nil
}

// Armor packs a bit buffer back into 6-bit ASCII armoring. Returns the
// payload and the number of fill bits padded onto the final character.
func Armor(bits Bits) (string, int) {
	fill := 0
	if r := len(bits) % 6; r != 0 {
		fill = 6 - r
		padded := make(Bits, len(bits), len(bits)+fill)
		copy(padded, bits)
		for i := 0; i < fill; i++ {
			padded = append(padded, 0)
		}
		bits = padded
	}
	var sb strings.Builder
	for i := 0; i < len(bits); i += 6 {
		v, _ := bits.Uint(i, 6)
		if v < 40 {
			sb.WriteByte('0' + byte(v))
		} else {
			sb.WriteByte('`' + byte(v) - 40)
		}
	}
	return sb.String(), fill
}

// Longer payloads than this get split across fragments (NMEA sentences cap
// out at 82 characters).
const maxSentencePayload = 60

// BuildVDM renders a payload as one or more checksummed AIVDM sentences,
// fragmenting long payloads. seq numbers the sequence when fragmented.
func BuildVDM(seq int, channel, payload string, fill int) []string {
	frags := (len(payload) + maxSentencePayload - 1) / maxSentencePayload
	if frags < 1 {
		frags = 1
	}

	lines := make([]string, 0, frags)
	for i := 0; i < frags; i++ {
		part := payload[i*maxSentencePayload : min((i+1)*maxSentencePayload, len(payload))]
		seqField := ""
		if frags > 1 {
			seqField = strconv.Itoa(seq % 10)
		}
		partFill := 0
		if i == frags-1 {
			partFill = fill
		}
		body := fmt.Sprintf("AIVDM,%d,%d,%s,%s,%s,%d", frags, i+1, seqField, channel, part, partFill)
		lines = append(lines, fmt.Sprintf("!%s*%02X", body, Checksum(body)))
	}
	return lines
}

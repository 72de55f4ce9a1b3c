package frame

import (
	"bufio"
	"encoding/binary"
	"io"
)

type parseState int

const (
	stateMarker  parseState = iota // waiting for the first '#'
	stateMarker2                   // waiting for the second '#'
	stateKind                      // waiting for the kind tag
	stateID                        // waiting for the source id
	stateBody                      // collecting timestamp and payload
)

// Parser decodes frames from a byte stream one byte at a time. Garbage
// between frames and headers with unknown kinds are skipped; the parser
// resynchronizes on the next marker.
type Parser struct {
	state parseState
	kind  Kind
	id    byte
	body  [timestampSize + SweepPayloadSize]byte
	n     int
	need  int

	// Skipped counts bytes discarded while hunting for a marker.
	Skipped int
	// Unknown counts headers with an unknown kind tag.
	Unknown int
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = stateMarker
	p.n = 0
}

// Parse consumes one byte. It returns a frame and true when b completes one.
func (p *Parser) Parse(b byte) (Frame, bool) {
	switch p.state {
	case stateMarker:
		if b == Marker[0] {
			p.state = stateMarker2
		} else {
			p.Skipped++
		}
	case stateMarker2:
		if b == Marker[1] {
			p.state = stateKind
		} else {
			p.Skipped += 2
			p.state = stateMarker
		}
	case stateKind:
		k := Kind(b)
		switch {
		case b == Marker[1]:
			// "###": the first '#' was noise.
			p.Skipped++
		case !k.Valid():
			p.Unknown++
			p.state = stateMarker
		default:
			p.kind, p.id, p.n = k, 0, 0
			p.need = timestampSize + k.PayloadSize()
			p.state = stateBody
			if k.HasID() {
				p.state = stateID
			}
		}
	case stateID:
		p.id = b
		p.state = stateBody
	case stateBody:
		p.body[p.n] = b
		p.n++
		if p.n == p.need {
			p.state = stateMarker
			return p.frame(), true
		}
	}
	return Frame{}, false
}

func (p *Parser) frame() Frame {
	payload := make([]byte, p.need-timestampSize)
	copy(payload, p.body[timestampSize:p.need])
	return Frame{
		Kind:      p.kind,
		ID:        p.id,
		Timestamp: binary.LittleEndian.Uint32(p.body[:]),
		Payload:   payload,
	}
}

// ParseAll feeds data through the parser and calls fn for every completed frame.
func (p *Parser) ParseAll(data []byte, fn func(Frame)) {
	for _, b := range data {
		if f, ok := p.Parse(b); ok {
			fn(f)
		}
	}
}

// Reader reads frames from a byte stream.
type Reader struct {
	r *bufio.Reader
	Parser
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. A partial frame at the end of the
// stream is dropped and io.EOF returned.
func (r *Reader) Next() (Frame, error) {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if f, ok := r.Parse(b); ok {
			return f, nil
		}
	}
}

package frame

import "encoding/binary"

// RecordSize is the number of bytes one Record occupies in storage.
const RecordSize = 2*timestampSize + IMUPayloadSize + SweepPayloadSize

// Record is one cycle's measurements as kept in the EEPROM log. Records
// are stored back to back with no header; the reader relies on RecordSize.
type Record struct {
	IMUTime   uint32
	IMU       IMU
	SweepTime uint32
	Sweep     Sweep
}

// MarshalTo encodes r into dst. The layout is IMU timestamp, IMU samples,
// sweep timestamp, sweep samples.
func (r *Record) MarshalTo(dst []byte) (int, error) {
	if len(dst) < RecordSize {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst, r.IMUTime)
	n := timestampSize
	for _, v := range r.IMU {
		binary.LittleEndian.PutUint16(dst[n:], uint16(v))
		n += 2
	}
	binary.LittleEndian.PutUint32(dst[n:], r.SweepTime)
	n += timestampSize
	for _, v := range r.Sweep {
		binary.LittleEndian.PutUint16(dst[n:], v)
		n += 2
	}
	return n, nil
}

// Unmarshal decodes r from src.
func (r *Record) Unmarshal(src []byte) error {
	if len(src) < RecordSize {
		return ErrShortBuffer
	}
	r.IMUTime = binary.LittleEndian.Uint32(src)
	n := timestampSize
	for i := range r.IMU {
		r.IMU[i] = int16(binary.LittleEndian.Uint16(src[n:]))
		n += 2
	}
	r.SweepTime = binary.LittleEndian.Uint32(src[n:])
	n += timestampSize
	for i := range r.Sweep {
		r.Sweep[i] = binary.LittleEndian.Uint16(src[n:])
		n += 2
	}
	return nil
}

package frame

// Framer lays out a cycle's telemetry segments for one shield.
type Framer struct {
	ID byte
}

// NewFramer creates a Framer stamping sweep frames with id.
func NewFramer(id byte) *Framer {
	return &Framer{ID: id}
}

// Live writes the current sweep frame followed by the current IMU frame.
func (f *Framer) Live(dst []byte, rec *Record) (int, error) {
	if len(dst) < SegmentSize {
		return 0, ErrShortBuffer
	}
	n, err := PutSweep(dst, KindSweep, f.ID, rec.SweepTime, &rec.Sweep)
	if err != nil {
		return 0, err
	}
	m, err := PutIMU(dst[n:], KindIMU, rec.IMUTime, &rec.IMU)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

// Replay writes a stored record as an IMU replay frame followed by a
// sweep replay frame.
func (f *Framer) Replay(dst []byte, rec *Record) (int, error) {
	if len(dst) < SegmentSize {
		return 0, ErrShortBuffer
	}
	n, err := PutIMU(dst, KindIMUReplay, rec.IMUTime, &rec.IMU)
	if err != nil {
		return 0, err
	}
	m, err := PutSweep(dst[n:], KindSweepReplay, f.ID, rec.SweepTime, &rec.Sweep)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

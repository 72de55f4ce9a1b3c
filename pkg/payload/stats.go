package payload

import "sync/atomic"

// Stats is a snapshot of the payload counters.
type Stats struct {
	Cycles           uint32 // sweeps started
	LiveSent         uint32 // live segments queued for transmission
	ReplaySent       uint32 // replay segments queued for transmission
	RecordsStored    uint32
	RecordsDropped   uint32 // log full
	RecordsReplayed  uint32 // records read back from the log
	PartialReads     uint32
	ChipFailures     uint32
	TransmitTimeouts uint32
	Interrupted      uint32
	StaleSweeps      uint32 // sweeps discarded by a sync pulse
	StorageEnabled   bool
}

type counters struct {
	cycles       atomic.Uint32
	liveSent     atomic.Uint32
	replaySent   atomic.Uint32
	stored       atomic.Uint32
	dropped      atomic.Uint32
	replayed     atomic.Uint32
	partialReads atomic.Uint32
	chipFailures atomic.Uint32
	txTimeouts   atomic.Uint32
	interrupted  atomic.Uint32
	stale        atomic.Uint32
}

// Stats returns the current counters. It is safe to call from any goroutine.
func (p *Payload) Stats() Stats {
	c := &p.counters
	return Stats{
		Cycles:           c.cycles.Load(),
		LiveSent:         c.liveSent.Load(),
		ReplaySent:       c.replaySent.Load(),
		RecordsStored:    c.stored.Load(),
		RecordsDropped:   c.dropped.Load(),
		RecordsReplayed:  c.replayed.Load(),
		PartialReads:     c.partialReads.Load(),
		ChipFailures:     c.chipFailures.Load(),
		TransmitTimeouts: c.txTimeouts.Load(),
		Interrupted:      c.interrupted.Load(),
		StaleSweeps:      c.stale.Load(),
		StorageEnabled:   !p.storageOff.Load(),
	}
}

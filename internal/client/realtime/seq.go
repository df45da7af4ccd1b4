package realtime

// seqWindow is how many recent sequence numbers are remembered for
// duplicate detection.
const seqWindow = 256

// seqTracker watches the per-room sequence numbers of mutation events.
// Exact duplicates are dropped; a jump past the next expected number is a
// gap. Late events (older than the newest seen) are passed through.
type seqTracker struct {
	last uint64
	seen map[uint64]struct{}
	ring []uint64
}

func (t *seqTracker) reset() {
	t.last = 0
	t.seen = nil
	t.ring = t.ring[:0]
}

// observe records seq and reports whether it was already seen and whether
// numbers are missing before it. Zero is unsequenced and never tracked.
func (t *seqTracker) observe(seq uint64) (dup, gap bool) {
	if seq == 0 {
		return false, false
	}
	if t.seen == nil {
		t.seen = make(map[uint64]struct{}, seqWindow)
	}
	if _, ok := t.seen[seq]; ok {
		return true, false
	}
	gap = t.last != 0 && seq > t.last+1

	t.seen[seq] = struct{}{}
	t.ring = append(t.ring, seq)
	if len(t.ring) > seqWindow {
		delete(t.seen, t.ring[0])
		t.ring = t.ring[1:]
	}
	t.last = max(t.last, seq)
	return false, gap
}

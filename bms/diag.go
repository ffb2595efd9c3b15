package bms

// Diagnostics tracks the health of the acquisition cycle: a sliding
// window of conversion outcomes per device, and the timing of the most
// recent completed cycle.
type Diagnostics struct {
	// ReadingPeriodUS is the time between the last two completed read
	// cycles, in microseconds.
	ReadingPeriodUS uint32
	// TimeToReadUS is the time from start-of-conversion to end-of-read
	// in the most recent cycle, in microseconds.
	TimeToReadUS uint32

	windows []window
}

// window is a ring of the last w conversion outcomes for one device.
// Until the ring fills up the rate divisor is the fill count, so the
// rate starts at 1.0 and moves in full-sample steps from the first
// recorded outcome.
type window struct {
	samples   []bool
	next      int
	filled    int
	successes int
	rate      float32
}

func newDiagnostics(devices, w int) Diagnostics {
	d := Diagnostics{windows: make([]window, devices)}
	for i := range d.windows {
		d.windows[i] = window{samples: make([]bool, w), rate: 1}
	}
	return d
}

func (w *window) record(ok bool) {
	if w.filled == len(w.samples) {
		if w.samples[w.next] {
			w.successes--
		}
	} else {
		w.filled++
	}
	w.samples[w.next] = ok
	if ok {
		w.successes++
	}
	w.next = (w.next + 1) % len(w.samples)
	w.rate = float32(w.successes) / float32(w.filled)
}

// SuccessRate reports the conversion success rate of device i over the
// diagnostics window, in [0, 1]. It is 1.0 before any outcome has been
// recorded.
func (d *Diagnostics) SuccessRate(i int) float32 {
	return d.windows[i].rate
}

func (d *Diagnostics) record(i int, ok bool) {
	d.windows[i].record(ok)
}

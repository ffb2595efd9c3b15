// package bms supervises a daisy chain of LTC6810 battery monitors.
//
// The supervisor drives the chain through its power modes with a
// cooperative state machine: it wakes the devices when a sampling
// deadline approaches, runs a cell conversion and a GPIO conversion,
// reads the results back, and lets the chain fall back to sleep when it
// has been idle long enough. Update is the sole entry point and must be
// called from a single task at least as often as the sampling period.
package bms

import (
	"hyperloopupv.com/bms/driver/ltc6810"
	"hyperloopupv.com/bms/fsm"
)

// State is a power/acquisition state of the supervisor.
type State uint8

const (
	Sleep State = iota
	Standby
	MeasuringCells
	ReadingCells
	MeasuringGPIOs
	ReadingGPIOs
)

// timeSleepUS is how long the chain may sit in standby before it is
// allowed to fall asleep, matching the LTC6810 softened-timeout
// behavior of the original firmware.
const timeSleepUS = 1_800_000

// Device holds the latest decoded measurements of one chain member.
// Slots keep their previous value across a failed read; ConvRate tells
// how much to trust them.
type Device struct {
	// Cells are the six cell voltages, in volts.
	Cells [6]float32
	// GPIOs are the four auxiliary voltages, in volts.
	GPIOs [4]float32
	// TotalVoltage is the chip's sum-of-cells measurement, in volts.
	TotalVoltage float32
	// ConvRate is the conversion success rate over the diagnostics
	// window, in [0, 1].
	ConvRate float32
}

// SumOfCells is the arithmetic sum of the six cell slots, usable as a
// cross-check against TotalVoltage.
func (d *Device) SumOfCells() float32 {
	var sum float32
	for _, v := range d.Cells {
		sum += v
	}
	return sum
}

// Config wires a supervisor to its host.
type Config struct {
	// Devices is the chain length.
	Devices int
	// SPI is the bus hook set handed to the ltc6810 link.
	SPI ltc6810.SPIConfig
	// Tick is the monotonic counter; it may wrap.
	Tick func() int32
	// TickResolutionUS converts a tick count into microseconds.
	TickResolutionUS uint32
	// PeriodUS is the target sampling period.
	PeriodUS uint32
	// WindowMS is the diagnostics window span.
	WindowMS uint32
	// RefOn selects whether the devices keep their reference powered
	// between conversions.
	RefOn bool
}

// Supervisor owns the chain driver, the measurement entities and the
// acquisition state machine. All state is allocated in New; the update
// path allocates nothing.
type Supervisor struct {
	cfg  Config
	drv  *ltc6810.Driver
	sm   *fsm.Machine[State]
	devs []Device
	diag Diagnostics

	current  uint32
	sleepRef uint32
	lastRead uint32
	initConv uint32
}

// New builds a supervisor. The chain starts asleep; the first Update
// past the sampling deadline wakes it.
func New(cfg Config) *Supervisor {
	w := int((cfg.WindowMS*1000 + cfg.PeriodUS - 1) / cfg.PeriodUS)
	if w < 1 {
		w = 1
	}
	s := &Supervisor{
		cfg:  cfg,
		drv:  ltc6810.New(cfg.SPI, cfg.Devices, cfg.RefOn),
		devs: make([]Device, cfg.Devices),
		diag: newDiagnostics(cfg.Devices, w),
	}
	for i := range s.devs {
		s.devs[i].ConvRate = 1
	}
	// Transition order is priority order: from standby the sleep
	// timeout outranks the sampling deadline.
	s.sm = fsm.New(Sleep,
		fsm.State[State]{
			ID: Sleep,
			Transitions: []fsm.Transition[State]{
				{Target: MeasuringCells, Guard: s.wakeGuard},
			},
		},
		fsm.State[State]{
			ID:    Standby,
			Entry: s.enterStandby,
			Transitions: []fsm.Transition[State]{
				{Target: Sleep, Guard: s.sleepGuard},
				{Target: MeasuringCells, Guard: s.deadlineGuard},
			},
		},
		fsm.State[State]{
			ID:    MeasuringCells,
			Entry: s.enterMeasuringCells,
			Transitions: []fsm.Transition[State]{
				{Target: ReadingCells, Guard: s.drv.ConvDone},
			},
		},
		fsm.State[State]{
			ID:    ReadingCells,
			Entry: s.enterReadingCells,
			Transitions: []fsm.Transition[State]{
				{Target: MeasuringGPIOs, Guard: always},
			},
		},
		fsm.State[State]{
			ID:    MeasuringGPIOs,
			Entry: s.enterMeasuringGPIOs,
			Transitions: []fsm.Transition[State]{
				{Target: ReadingGPIOs, Guard: s.drv.ConvDone},
			},
		},
		fsm.State[State]{
			ID:    ReadingGPIOs,
			Entry: s.enterReadingGPIOs,
			Transitions: []fsm.Transition[State]{
				{Target: Standby, Guard: always},
			},
		},
	)
	return s
}

func always() bool { return true }

// Update advances the engine one step: refresh the clock, then run at
// most one state transition.
func (s *Supervisor) Update() {
	s.current = uint32(s.cfg.Tick()) * s.cfg.TickResolutionUS
	s.sm.Update()
}

// State reports the current acquisition state.
func (s *Supervisor) State() State {
	return s.sm.Current()
}

// Data is a read-only view of the latest measurements, one entry per
// device in chain order. Callers must not mutate it and must not call
// Update concurrently.
func (s *Supervisor) Data() []Device {
	return s.devs
}

// Diag is a read-only view of the acquisition diagnostics.
func (s *Supervisor) Diag() *Diagnostics {
	return &s.diag
}

// AdcMode reports the driver's current conversion speed setting.
func (s *Supervisor) AdcMode() ltc6810.AdcMode {
	return s.drv.Mode()
}

// deadlineElapsed reports whether the next conversion must start now to
// finish a read cycle within the sampling period. Tick wraparound is
// absorbed by the unsigned subtraction.
func (s *Supervisor) deadlineElapsed() bool {
	return s.current-s.lastRead >= s.cfg.PeriodUS-s.diag.TimeToReadUS
}

func (s *Supervisor) deadlineGuard() bool {
	return s.deadlineElapsed()
}

// wakeGuard is the one guard with a side effect: leaving sleep must
// wake the chain, and doing it on the true branch guarantees exactly
// one wake-up per sleep-to-measure transition.
func (s *Supervisor) wakeGuard() bool {
	if !s.deadlineElapsed() {
		return false
	}
	s.drv.WakeUp()
	return true
}

func (s *Supervisor) sleepGuard() bool {
	return s.current-s.sleepRef >= timeSleepUS
}

func (s *Supervisor) enterStandby() {
	s.sleepRef = s.current
}

func (s *Supervisor) enterMeasuringCells() {
	s.initConv = s.current
	s.drv.StartCellConversion()
}

func (s *Supervisor) enterReadingCells() {
	for i, cells := range s.drv.ReadCells() {
		dev := &s.devs[i]
		for k := 0; k < 6; k++ {
			if c := cells[k]; c.OK {
				dev.Cells[k] = c.V
			}
			s.diag.record(i, cells[k].OK)
		}
		if total := cells[6]; total.OK {
			dev.TotalVoltage = total.V
		}
		s.diag.record(i, cells[6].OK)
		dev.ConvRate = s.diag.SuccessRate(i)
	}
}

func (s *Supervisor) enterMeasuringGPIOs() {
	s.drv.StartGPIOConversion()
}

func (s *Supervisor) enterReadingGPIOs() {
	for i, gpios := range s.drv.ReadGPIOs() {
		dev := &s.devs[i]
		for k := 0; k < 4; k++ {
			if g := gpios[k]; g.OK {
				dev.GPIOs[k] = g.V
			}
			s.diag.record(i, gpios[k].OK)
		}
		dev.ConvRate = s.diag.SuccessRate(i)
	}
	s.diag.TimeToReadUS = s.current - s.initConv
	s.diag.ReadingPeriodUS = s.current - s.lastRead
	s.lastRead = s.current
	// A slipped deadline outranks individual PEC failures as a signal:
	// trade conversion noise for latency and never trade back.
	if s.diag.ReadingPeriodUS > s.cfg.PeriodUS+s.cfg.PeriodUS/10 {
		s.drv.FasterConv()
	}
}

package ltc6810

// AdcMode is the conversion speed and filter setting of the on-chip
// ADC. Lower values are faster. The slow/fast variant within a pair
// sharing MD bits is selected by ADCOPT in the configuration register,
// which this driver leaves at zero.
type AdcMode uint8

const (
	KHZ27 AdcMode = iota
	KHZ14
	KHZ7
	KHZ3
	KHZ2
	KHZ1
	HZ422
	HZ26
)

// adcResolution is the LSB weight of a conversion result, in volts.
const adcResolution = 100e-6

// Fixed command codes, from table 38 of the datasheet.
const (
	WRCFG   = 0x0001
	RDCVA   = 0x0004
	RDCVB   = 0x0006
	RDAUXA  = 0x000c
	RDAUXB  = 0x000e
	RDSTATA = 0x0010
)

// md returns the MD[1:0] speed bits of mode, placed at bits 8:7 of the
// conversion opcodes.
func (m AdcMode) md() uint16 {
	switch m {
	case HZ422, KHZ1:
		return 0b00 << 7
	case KHZ27, KHZ14:
		return 0b01 << 7
	case KHZ7, KHZ3:
		return 0b10 << 7
	default: // HZ26, KHZ2
		return 0b11 << 7
	}
}

// Conversion opcode templates with MD zeroed. ADCV converts all cells,
// ADCVSC additionally converts the sum-of-cells measurement, ADAX
// converts the GPIO channels.
func ADCV(m AdcMode) uint16   { return 0x0260 | m.md() }
func ADCVSC(m AdcMode) uint16 { return 0x0477 | m.md() }
func ADAX(m AdcMode) uint16   { return 0x0460 | m.md() }

// configPayload is the WRCFG payload. CFGR0 carries REFON at bit 2 plus the
// static GPIO pull-down disables; the remaining bytes stay zero (no
// discharge, no undervoltage/overvoltage thresholds).
func configPayload(refOn bool) [6]byte {
	if refOn {
		return [6]byte{0x7c}
	}
	return [6]byte{0x78}
}

// Sample is one measurement slot. OK reports whether the slot was
// refreshed by the most recent read; a slot stays absent when its
// register group failed the PEC check.
type Sample struct {
	V  float32
	OK bool
}

// Driver drives a daisy chain of n LTC6810s through the high-level
// operations the acquisition engine needs: wake-up and configuration,
// conversion start and polling, and decoded register reads.
type Driver struct {
	link *link
	mode AdcMode

	// Framed commands. The three conversion commands are rebuilt when
	// the mode changes; the others are fixed.
	adcv   Command
	adcvsc Command
	adax   Command
	wrcfg  Command
	rdcva  Command
	rdcvb  Command
	rdauxa Command
	rdauxb Command
	rdstat Command

	cfg Register

	cells [][7]Sample
	gpios [][4]Sample
}

// New returns a driver for a chain of n devices in the slowest ADC mode.
func New(spi SPIConfig, n int, refOn bool) *Driver {
	d := &Driver{
		link:   newLink(spi, n),
		mode:   HZ26,
		wrcfg:  NewCommand(WRCFG),
		rdcva:  NewCommand(RDCVA),
		rdcvb:  NewCommand(RDCVB),
		rdauxa: NewCommand(RDAUXA),
		rdauxb: NewCommand(RDAUXB),
		rdstat: NewCommand(RDSTATA),
		cfg:    NewRegister(configPayload(refOn)),
		cells:  make([][7]Sample, n),
		gpios:  make([][4]Sample, n),
	}
	d.rebuildConvCommands()
	return d
}

func (d *Driver) rebuildConvCommands() {
	d.adcv = NewCommand(ADCV(d.mode))
	d.adcvsc = NewCommand(ADCVSC(d.mode))
	d.adax = NewCommand(ADAX(d.mode))
}

// Mode reports the current ADC mode.
func (d *Driver) Mode() AdcMode {
	return d.mode
}

// WakeUp pulses the chain out of sleep and rewrites the configuration
// register, which the devices reset on their way down to sleep.
func (d *Driver) WakeUp() {
	d.link.wakeUp()
	d.link.write(d.wrcfg, d.cfg)
}

// StartCellConversion begins an all-cell conversion including the
// sum-of-cells measurement. The poll conversation stays open until
// ConvDone reports true.
func (d *Driver) StartCellConversion() {
	d.link.startConversion(d.adcvsc)
}

// StartGPIOConversion begins an auxiliary (GPIO) conversion.
func (d *Driver) StartGPIOConversion() {
	d.link.startConversion(d.adax)
}

// ConvDone polls the chain for conversion completion.
func (d *Driver) ConvDone() bool {
	return d.link.convDone()
}

// ReadCells reads cell groups A and B and status group A, and decodes
// them into volts per device: slots 0..5 are the six cells, slot 6 is
// the chip's sum-of-cells measurement, which it reports divided by 10.
// Slots whose register group failed the PEC check are left absent. The
// returned slice is reused by the next read.
func (d *Driver) ReadCells() [][7]Sample {
	for i := range d.cells {
		d.cells[i] = [7]Sample{}
	}
	for i, reg := range d.link.read(d.rdcva) {
		if !reg.Valid() {
			continue
		}
		w := reg.Words()
		for k := 0; k < 3; k++ {
			d.cells[i][k] = Sample{V: float32(w[k]) * adcResolution, OK: true}
		}
	}
	for i, reg := range d.link.read(d.rdcvb) {
		if !reg.Valid() {
			continue
		}
		w := reg.Words()
		for k := 0; k < 3; k++ {
			d.cells[i][3+k] = Sample{V: float32(w[k]) * adcResolution, OK: true}
		}
	}
	for i, reg := range d.link.read(d.rdstat) {
		if !reg.Valid() {
			continue
		}
		w := reg.Words()
		d.cells[i][6] = Sample{V: float32(w[0]) * adcResolution * 10, OK: true}
	}
	return d.cells
}

// ReadGPIOs reads auxiliary groups A and B and decodes the four GPIO
// voltages per device. Word 0 of group A is the second reference
// diagnostic, not a board sensor, and is skipped. The returned slice is
// reused by the next read.
func (d *Driver) ReadGPIOs() [][4]Sample {
	for i := range d.gpios {
		d.gpios[i] = [4]Sample{}
	}
	for i, reg := range d.link.read(d.rdauxa) {
		if !reg.Valid() {
			continue
		}
		w := reg.Words()
		d.gpios[i][0] = Sample{V: float32(w[1]) * adcResolution, OK: true}
		d.gpios[i][1] = Sample{V: float32(w[2]) * adcResolution, OK: true}
	}
	for i, reg := range d.link.read(d.rdauxb) {
		if !reg.Valid() {
			continue
		}
		w := reg.Words()
		d.gpios[i][2] = Sample{V: float32(w[0]) * adcResolution, OK: true}
		d.gpios[i][3] = Sample{V: float32(w[1]) * adcResolution, OK: true}
	}
	return d.gpios
}

// FasterConv steps the ADC mode one notch toward the fastest setting
// and rebuilds the conversion commands. At the fastest setting it is a
// no-op.
func (d *Driver) FasterConv() {
	if d.mode == KHZ27 {
		return
	}
	d.mode--
	d.rebuildConvCommands()
}

package ltc6810

// SPIConfig is the set of host primitives the link is wired to. The
// four hooks mirror the bare-metal SPI peripheral: synchronous
// transmit/receive of exactly len(buf) bytes, and chip-select control.
//
// The chain's CS line is active low. Select drives it low and opens a
// frame on the chain; Deselect releases it high and closes the frame.
// Both are idempotent.
type SPIConfig struct {
	Transmit func(tx []byte)
	Receive  func(rx []byte)
	Select   func()
	Deselect func()
}

// link frames commands and register groups on a daisy chain of n
// devices. The chain behaves as one long shift register: a read returns
// one register group per device, in chain order.
type link struct {
	spi SPIConfig
	n   int

	// Scratch for chain reads, sized at construction. regs is reused
	// across reads; callers consume it before the next read.
	rx   []byte
	regs []Register
}

func newLink(spi SPIConfig, n int) *link {
	return &link{
		spi:  spi,
		n:    n,
		rx:   make([]byte, n*8),
		regs: make([]Register, n),
	}
}

// wakeUp issues one wake pulse per device. A pulse on CS wakes the
// first device's isoSPI port; each pulse then needs to propagate one
// hop further down the chain, so n pulses wake the whole chain.
func (l *link) wakeUp() {
	wake := [1]byte{0xff}
	for i := 0; i < l.n; i++ {
		l.spi.Select()
		l.spi.Transmit(wake[:])
		l.spi.Deselect()
	}
}

// send broadcasts a command with no payload.
func (l *link) send(cmd Command) {
	l.spi.Select()
	l.spi.Transmit(cmd[:])
	l.spi.Deselect()
}

// write broadcasts a command followed by a register group payload.
func (l *link) write(cmd Command, reg Register) {
	l.spi.Select()
	l.spi.Transmit(cmd[:])
	l.spi.Transmit(reg[:])
	l.spi.Deselect()
}

// read broadcasts a command and shifts one register group per device
// out of the chain.
func (l *link) read(cmd Command) []Register {
	l.spi.Select()
	l.spi.Transmit(cmd[:])
	l.spi.Receive(l.rx)
	l.spi.Deselect()
	for i := range l.regs {
		copy(l.regs[i][:], l.rx[i*8:])
	}
	return l.regs
}

// startConversion broadcasts a conversion command and shifts out the
// ⌈n/8⌉ padding bytes that precede the conversion-done flag. CS stays
// asserted on purpose: the done poll is one continuous conversation
// with the chain, terminated by convDone when the flag comes back
// non-zero.
func (l *link) startConversion(cmd Command) {
	l.spi.Select()
	l.spi.Transmit(cmd[:])
	pad := l.rx[:(l.n+7)/8]
	l.spi.Receive(pad)
}

// convDone shifts one more byte of the poll conversation. A non-zero
// byte means every device finished converting; only then is the frame
// closed.
func (l *link) convDone() bool {
	var flag [1]byte
	l.spi.Receive(flag[:])
	if flag[0] != 0 {
		l.spi.Deselect()
		return true
	}
	return false
}

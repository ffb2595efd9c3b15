// command bmsmon runs the LTC6810 acquisition engine against a real
// daisy chain, logs the measurements of every cycle when -v is set, and
// optionally streams them to a serial ground link.
//
// The SPI port comes from the periph.io port registry; the chip-select
// line is driven manually through a GPIO pin because the chain framing
// (wake pulses, held-open conversion polls) does not fit the port's
// automatic per-transfer CS.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"hyperloopupv.com/bms/bms"
	"hyperloopupv.com/bms/driver/ltc6810"
	"hyperloopupv.com/bms/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bmsmon: %v\n", err)
		os.Exit(2)
	}
}

// tickResolutionUS is the granularity of the engine clock.
const tickResolutionUS = 100

func run() error {
	devices := flag.Int("n", 1, "number of devices in the chain")
	spiName := flag.String("spi", "", "SPI port name (default: first available)")
	csName := flag.String("cs", "GPIO8", "chip select pin name")
	periodMS := flag.Uint("period", 10, "sampling period in milliseconds")
	windowMS := flag.Uint("window", 1000, "diagnostics window in milliseconds")
	refOn := flag.Bool("refon", true, "keep the measurement reference powered between conversions")
	serialDev := flag.String("serial", "", "serial device for the telemetry stream")
	baud := flag.Int("baud", 115200, "serial baud rate")
	verbose := flag.Bool("v", false, "print every cycle")
	flag.Parse()

	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))

	if _, err := host.Init(); err != nil {
		return err
	}
	port, err := spireg.Open(*spiName)
	if err != nil {
		return err
	}
	defer port.Close()
	// The LTC6810 samples MOSI on the rising clock edge with the clock
	// idling high.
	conn, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return err
	}
	cs := gpioreg.ByName(*csName)
	if cs == nil {
		return fmt.Errorf("no pin named %q", *csName)
	}
	if err := cs.Out(gpio.High); err != nil {
		return err
	}

	// The engine's hooks have no error path; bus errors surface in the
	// log and as PEC failures in the diagnostics.
	tx := func(buf []byte, rx bool) {
		var w, r []byte
		if rx {
			r = buf
		} else {
			w = buf
		}
		if err := conn.Tx(w, r); err != nil {
			log.Printf("spi: %v", err)
		}
	}

	var enc *telemetry.Encoder
	if *serialDev != "" {
		s, err := serial.OpenPort(&serial.Config{Name: *serialDev, Baud: *baud})
		if err != nil {
			return err
		}
		defer s.Close()
		enc = telemetry.NewEncoder(s)
	}

	start := time.Now()
	sup := bms.New(bms.Config{
		Devices: *devices,
		SPI: ltc6810.SPIConfig{
			Transmit: func(b []byte) { tx(b, false) },
			Receive:  func(b []byte) { tx(b, true) },
			Select:   func() { cs.Out(gpio.Low) },
			Deselect: func() { cs.Out(gpio.High) },
		},
		Tick: func() int32 {
			return int32(time.Since(start) / (tickResolutionUS * time.Microsecond))
		},
		TickResolutionUS: tickResolutionUS,
		PeriodUS:         uint32(*periodMS) * 1000,
		WindowMS:         uint32(*windowMS),
		RefOn:            *refOn,
	})

	log.Printf("bmsmon: %d devices, period %d ms", *devices, *periodMS)

	seq := uint32(0)
	prev := sup.State()
	ticker := time.NewTicker(tickResolutionUS * time.Microsecond)
	defer ticker.Stop()
	for range ticker.C {
		sup.Update()
		state := sup.State()
		if prev == bms.ReadingGPIOs && state == bms.Standby {
			seq++
			diag := sup.Diag()
			if *verbose {
				for i, d := range sup.Data() {
					log.Printf("dev %d: cells %v total %.3f V gpios %v rate %.2f",
						i, d.Cells, d.TotalVoltage, d.GPIOs, d.ConvRate)
				}
				log.Printf("cycle %d: period %d us, read %d us",
					seq, diag.ReadingPeriodUS, diag.TimeToReadUS)
			}
			if enc != nil {
				if err := enc.Encode(telemetry.Snapshot(seq, sup.Data(), diag)); err != nil {
					log.Printf("telemetry: %v", err)
				}
			}
		}
		prev = state
	}
	return nil
}

package ltc6810

import "testing"

func TestWakeUpPulses(t *testing.T) {
	sim := NewSimulator(3)
	l := newLink(sim.SPIConfig(), 3)
	l.wakeUp()
	if sim.Err != nil {
		t.Fatal(sim.Err)
	}
	if got := sim.WakePulses(); got != 3 {
		t.Errorf("wakeUp() sent %d pulses, want 3", got)
	}
	if sim.cs {
		t.Error("chain left selected after wake-up")
	}
}

func TestReadChainOrder(t *testing.T) {
	const n = 4
	sim := NewSimulator(n)
	for dev := 0; dev < n; dev++ {
		sim.SetWords(GroupCVA, dev, [3]uint16{uint16(1000 * (dev + 1)), 2, 3})
	}
	l := newLink(sim.SPIConfig(), n)
	regs := l.read(NewCommand(RDCVA))
	if sim.Err != nil {
		t.Fatal(sim.Err)
	}
	if len(regs) != n {
		t.Fatalf("read returned %d registers, want %d", len(regs), n)
	}
	for dev, reg := range regs {
		if !reg.Valid() {
			t.Fatalf("device %d register does not verify", dev)
		}
		if got := reg.Words()[0]; got != uint16(1000*(dev+1)) {
			t.Errorf("device %d word 0 = %d, want %d", dev, got, 1000*(dev+1))
		}
	}
	if sim.cs {
		t.Error("chain left selected after read")
	}
}

func TestConversionPoll(t *testing.T) {
	sim := NewSimulator(2)
	sim.DonePolls = 2
	l := newLink(sim.SPIConfig(), 2)
	l.startConversion(NewCommand(ADCVSC(HZ26)))
	if !sim.cs {
		t.Fatal("chain released before the conversion completed")
	}
	for i := 0; i < 2; i++ {
		if l.convDone() {
			t.Fatalf("poll %d reported done early", i)
		}
		if !sim.cs {
			t.Fatalf("chain released on not-done poll %d", i)
		}
	}
	if !l.convDone() {
		t.Fatal("third poll did not report done")
	}
	if sim.cs {
		t.Error("chain still selected after the done poll")
	}
	if sim.Err != nil {
		t.Fatal(sim.Err)
	}
}

func TestWriteFraming(t *testing.T) {
	sim := NewSimulator(1)
	l := newLink(sim.SPIConfig(), 1)
	l.write(NewCommand(WRCFG), NewRegister([6]byte{0x7c}))
	if sim.Err != nil {
		t.Fatal(sim.Err)
	}
	if len(sim.CfgWrites) != 1 || sim.CfgWrites[0] != [6]byte{0x7c} {
		t.Errorf("configuration writes = % x", sim.CfgWrites)
	}
	if sim.cs {
		t.Error("chain left selected after write")
	}
}

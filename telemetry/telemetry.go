// package telemetry encodes acquisition snapshots into compact CBOR
// records for the ground-station link.
package telemetry

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"hyperloopupv.com/bms/bms"
)

// Record is one snapshot of the whole chain. Records are encoded as
// CBOR arrays, deterministically, so the ground station can treat the
// stream as a self-delimiting sequence.
type Record struct {
	_      struct{} `cbor:",toarray"`
	Seq    uint32
	Period uint32 // microseconds between the last two read cycles
	Read   uint32 // microseconds from conversion start to read end
	Devs   []DeviceRecord
}

// DeviceRecord is the snapshot of one chain member.
type DeviceRecord struct {
	_     struct{} `cbor:",toarray"`
	Cells [6]float32
	GPIOs [4]float32
	Total float32
	Rate  float32
}

// Snapshot captures the supervisor's current data into a record.
func Snapshot(seq uint32, devs []bms.Device, diag *bms.Diagnostics) Record {
	r := Record{
		Seq:    seq,
		Period: diag.ReadingPeriodUS,
		Read:   diag.TimeToReadUS,
		Devs:   make([]DeviceRecord, len(devs)),
	}
	for i, d := range devs {
		r.Devs[i] = DeviceRecord{
			Cells: d.Cells,
			GPIOs: d.GPIOs,
			Total: d.TotalVoltage,
			Rate:  d.ConvRate,
		}
	}
	return r
}

// Encoder writes records to a stream.
type Encoder struct {
	w    io.Writer
	mode cbor.EncMode
}

func NewEncoder(w io.Writer) *Encoder {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		// The options are constant.
		panic(err)
	}
	return &Encoder{w: w, mode: mode}
}

func (e *Encoder) Encode(r Record) error {
	b, err := e.mode.Marshal(r)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Decode parses one record, rejecting unknown fields. It is the
// receiving end of Encoder and exists mainly for ground-station tools
// and tests.
func Decode(data []byte) (Record, error) {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return Record{}, fmt.Errorf("telemetry: %w", err)
	}
	var r Record
	if err := mode.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("telemetry: decode: %w", err)
	}
	return r, nil
}

package nearfield

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog"
)

const (
	insSelect     = 0xA4
	insReadBinary = 0xB0
)

var (
	ndefAID    = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	ccFileID   = []byte{0xE1, 0x03}
	ndefFileID = []byte{0xE1, 0x04}

	swOK       = []byte{0x90, 0x00}
	swNotFound = []byte{0x6A, 0x82}
)

// Emulator is a software NFC Forum Type 4 tag exposing one NDEF URI record.
// ProcessAPDU is the host card emulation entry point.
type Emulator struct {
	mu       sync.Mutex
	message  []byte
	active   bool
	selected []byte
	logger   zerolog.Logger
}

var (
	_ Publisher   = (*Emulator)(nil)
	_ Transceiver = (*Emulator)(nil)
)

// NewEmulator creates an idle emulator.
func NewEmulator(logger zerolog.Logger) *Emulator {
	return &Emulator{logger: logger.With().Str("component", "tag_emulator").Logger()}
}

// Publish starts emulating a tag carrying payload.
func (e *Emulator) Publish(_ context.Context, payload string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return ErrBusy
	}
	e.message = EncodeNDEFFile(payload)
	e.active = true
	e.logger.Debug().Int("bytes", len(e.message)).Msg("tag emulation started")
	return nil
}

// Release stops emulation.
func (e *Emulator) Release(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		e.logger.Debug().Msg("tag emulation stopped")
	}
	e.message = nil
	e.active = false
	e.selected = nil
	return nil
}

// Active reports whether a payload is being emulated.
func (e *Emulator) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Deactivate resets the file selection when the reader leaves the field.
func (e *Emulator) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = nil
}

// Transceive processes apdu in-process.
func (e *Emulator) Transceive(_ context.Context, apdu []byte) ([]byte, error) {
	return e.ProcessAPDU(apdu), nil
}

// ProcessAPDU answers SELECT and READ BINARY commands. Everything else
// returns 6A82.
func (e *Emulator) ProcessAPDU(apdu []byte) []byte {
	if len(apdu) < 4 {
		return swNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch apdu[1] {
	case insSelect:
		return e.handleSelect(apdu)
	case insReadBinary:
		return e.handleReadBinary(apdu)
	default:
		return swNotFound
	}
}

func (e *Emulator) handleSelect(apdu []byte) []byte {
	if len(apdu) < 5 {
		return swNotFound
	}
	lc := int(apdu[4])
	if len(apdu) < 5+lc {
		return swNotFound
	}
	data := apdu[5 : 5+lc]

	switch {
	case bytes.Equal(data, ndefAID):
		return swOK
	case bytes.Equal(data, ccFileID):
		e.selected = e.capabilityContainer()
		return swOK
	case bytes.Equal(data, ndefFileID):
		if e.message != nil {
			e.selected = e.message
		} else {
			e.selected = []byte{0x00, 0x00}
		}
		return swOK
	default:
		return swNotFound
	}
}

func (e *Emulator) handleReadBinary(apdu []byte) []byte {
	file := e.selected
	if file == nil {
		return swNotFound
	}
	offset := int(binary.BigEndian.Uint16(apdu[2:4]))
	le := len(file)
	if len(apdu) > 4 {
		le = int(apdu[len(apdu)-1])
	}
	if offset >= len(file) {
		return swNotFound
	}
	end := offset + le
	if end > len(file) {
		end = len(file)
	}
	out := make([]byte, 0, end-offset+2)
	out = append(out, file[offset:end]...)
	return append(out, swOK...)
}

// capabilityContainer builds the 15-byte CC file.
func (e *Emulator) capabilityContainer() []byte {
	size := uint16(len(e.message))
	return []byte{
		0x00, 0x0F, // CC length
		0x20,       // mapping version 2.0
		0x00, 0x3B, // max R-APDU
		0x00, 0x34, // max C-APDU
		0x04, 0x06, // NDEF file control TLV
		ndefFileID[0], ndefFileID[1],
		byte(size >> 8), byte(size),
		0x00, // read access granted
		0xFF, // write access denied
	}
}

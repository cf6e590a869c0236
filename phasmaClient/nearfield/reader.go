package nearfield

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Transceiver exchanges APDUs with a tag in the field.
type Transceiver interface {
	Transceive(ctx context.Context, apdu []byte) ([]byte, error)
}

// TagReader reads the NDEF URI of a Type 4 tag.
type TagReader struct {
	tag Transceiver
}

var _ Reader = (*TagReader)(nil)

// NewTagReader creates a reader talking to tag.
func NewTagReader(tag Transceiver) *TagReader {
	return &TagReader{tag: tag}
}

// Read selects the NDEF application, reads the capability container and
// returns the URI stored in the NDEF file.
func (r *TagReader) Read(ctx context.Context) (string, error) {
	if _, err := r.command(ctx, selectAPDU(0x04, 0x00, ndefAID, true)); err != nil {
		return "", fmt.Errorf("select NDEF application: %w", err)
	}
	if _, err := r.command(ctx, selectAPDU(0x00, 0x0C, ccFileID, false)); err != nil {
		return "", fmt.Errorf("select capability container: %w", err)
	}
	cc, err := r.command(ctx, readBinaryAPDU(0, 15))
	if err != nil {
		return "", fmt.Errorf("read capability container: %w", err)
	}
	if len(cc) < 15 {
		return "", fmt.Errorf("capability container has %d bytes", len(cc))
	}
	maxRead := int(binary.BigEndian.Uint16(cc[3:5]))
	if maxRead <= 0 || maxRead > 0xFF {
		maxRead = 0xFF
	}
	fileID := cc[9:11]

	if _, err := r.command(ctx, selectAPDU(0x00, 0x0C, fileID, false)); err != nil {
		return "", fmt.Errorf("select NDEF file: %w", err)
	}
	head, err := r.command(ctx, readBinaryAPDU(0, 2))
	if err != nil || len(head) < 2 {
		return "", fmt.Errorf("read NDEF length: %w", err)
	}
	length := int(binary.BigEndian.Uint16(head))
	if length == 0 {
		return "", fmt.Errorf("tag carries no NDEF message")
	}

	message := make([]byte, 0, length)
	for len(message) < length {
		chunk := length - len(message)
		if chunk > maxRead {
			chunk = maxRead
		}
		data, err := r.command(ctx, readBinaryAPDU(2+len(message), chunk))
		if err != nil {
			return "", fmt.Errorf("read NDEF message: %w", err)
		}
		if len(data) == 0 {
			return "", fmt.Errorf("tag returned an empty chunk")
		}
		message = append(message, data...)
	}
	return DecodeURIRecord(message[:length])
}

// command sends apdu and strips a 9000 status word.
func (r *TagReader) command(ctx context.Context, apdu []byte) ([]byte, error) {
	resp, err := r.tag.Transceive(ctx, apdu)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("short response")
	}
	sw := resp[len(resp)-2:]
	if sw[0] != swOK[0] || sw[1] != swOK[1] {
		return nil, fmt.Errorf("status word %02X%02X", sw[0], sw[1])
	}
	return resp[:len(resp)-2], nil
}

func selectAPDU(p1, p2 byte, data []byte, withLe bool) []byte {
	apdu := []byte{0x00, insSelect, p1, p2, byte(len(data))}
	apdu = append(apdu, data...)
	if withLe {
		apdu = append(apdu, 0x00)
	}
	return apdu
}

func readBinaryAPDU(offset, length int) []byte {
	return []byte{0x00, insReadBinary, byte(offset >> 8), byte(offset), byte(length)}
}

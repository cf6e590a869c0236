package nearfield

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// NDEF record header bits.
const (
	ndefMB           = 0x80
	ndefME           = 0x40
	ndefSR           = 0x10
	ndefIL           = 0x08
	ndefTNFWellKnown = 0x01

	uriRecordType     = 'U'
	uriNoAbbreviation = 0x00

	shortRecordMaxPayload = 255
)

var errMalformedNDEF = errors.New("malformed NDEF record")

// EncodeURIRecord builds a single well-known URI record carrying uri with no
// prefix abbreviation. Payloads over 255 bytes use the long record form.
func EncodeURIRecord(uri string) []byte {
	payload := make([]byte, 0, len(uri)+1)
	payload = append(payload, uriNoAbbreviation)
	payload = append(payload, uri...)

	header := byte(ndefMB | ndefME | ndefTNFWellKnown)
	var record []byte
	if len(payload) <= shortRecordMaxPayload {
		record = append(record, header|ndefSR, 1, byte(len(payload)))
	} else {
		record = append(record, header, 1)
		record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	}
	record = append(record, uriRecordType)
	return append(record, payload...)
}

// EncodeNDEFFile wraps the URI record with the 2-byte length prefix read by
// Type 4 tag readers.
func EncodeNDEFFile(uri string) []byte {
	record := EncodeURIRecord(uri)
	file := make([]byte, 2, len(record)+2)
	binary.BigEndian.PutUint16(file, uint16(len(record)))
	return append(file, record...)
}

// DecodeURIRecord extracts the URI of the first record of an NDEF message.
func DecodeURIRecord(message []byte) (string, error) {
	if len(message) < 3 {
		return "", errMalformedNDEF
	}
	header := message[0]
	if header&0x07 != ndefTNFWellKnown {
		return "", fmt.Errorf("%w: unexpected type name format %d", errMalformedNDEF, header&0x07)
	}
	typeLen := int(message[1])
	offset := 2

	var payloadLen int
	if header&ndefSR != 0 {
		payloadLen = int(message[offset])
		offset++
	} else {
		if len(message) < offset+4 {
			return "", errMalformedNDEF
		}
		payloadLen = int(binary.BigEndian.Uint32(message[offset:]))
		offset += 4
	}
	idLen := 0
	if header&ndefIL != 0 {
		if len(message) <= offset {
			return "", errMalformedNDEF
		}
		idLen = int(message[offset])
		offset++
	}

	if len(message) < offset+typeLen+idLen+payloadLen {
		return "", errMalformedNDEF
	}
	recordType := message[offset : offset+typeLen]
	offset += typeLen + idLen
	if len(recordType) != 1 || recordType[0] != uriRecordType {
		return "", fmt.Errorf("%w: not a URI record", errMalformedNDEF)
	}
	payload := message[offset : offset+payloadLen]
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty URI payload", errMalformedNDEF)
	}
	prefix, ok := uriPrefixes[payload[0]]
	if !ok {
		return "", fmt.Errorf("%w: unknown URI prefix code %d", errMalformedNDEF, payload[0])
	}
	return prefix + string(payload[1:]), nil
}

// uriPrefixes maps the common URI abbreviation codes.
var uriPrefixes = map[byte]string{
	0x00: "",
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
}

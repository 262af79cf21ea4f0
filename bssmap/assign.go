// Package bssmap implements the slice of GSM 08.08 (BSSMAP) the core
// needs: locating and rewriting the Circuit Identity Code TLV carried in
// an ASSIGNMENT REQUEST (spec §4.5). It only understands the TLV
// encoding, not BSSMAP message semantics beyond that one element.
package bssmap

import (
	"encoding/binary"
	"fmt"
)

// IECircuitIdentityCode is the GSM 08.08 information element tag for the
// Circuit Identity Code.
const IECircuitIdentityCode = 0x01

// tlv is one tag-length-value element as laid out on the wire: a 1-byte
// tag, a 1-byte length, and that many value bytes.
type tlv struct {
	tag   byte
	value []byte
}

// parseTLVs walks a flat (non-nested) TLV sequence, the subset of the
// GSM 08.08 attribute table the assignment patcher cares about.
func parseTLVs(buf []byte) ([]tlv, error) {
	var out []tlv
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("bssmap: truncated TLV header")
		}
		tag, length := buf[0], int(buf[1])
		if len(buf) < 2+length {
			return nil, fmt.Errorf("bssmap: TLV tag %#x length %d exceeds buffer", tag, length)
		}
		out = append(out, tlv{tag: tag, value: buf[2 : 2+length]})
		buf = buf[2+length:]
	}
	return out, nil
}

// CircuitIdentityCode locates the Circuit Identity Code TLV in an
// ASSIGNMENT REQUEST's layer-3 payload and returns its decoded CIC value
// (spec §4.5 steps 1-2).
//
// l3 is the message's layer-3 payload; per spec the TLV sequence begins
// 3 bytes into it (message type + BSSMAP length octet already consumed
// by the caller).
func CircuitIdentityCode(l3 []byte) (uint16, error) {
	if len(l3) < 3 {
		return 0, fmt.Errorf("bssmap: layer-3 payload too short for an assignment message")
	}

	elements, err := parseTLVs(l3[3:])
	if err != nil {
		return 0, err
	}

	for _, e := range elements {
		if e.tag == IECircuitIdentityCode {
			if len(e.value) != 2 {
				return 0, fmt.Errorf("bssmap: circuit identity code has unexpected length %d", len(e.value))
			}
			return binary.BigEndian.Uint16(e.value), nil
		}
	}
	return 0, fmt.Errorf("bssmap: circuit identity code not found in assignment message")
}

// PatchCircuitIdentityCode overwrites the Circuit Identity Code TLV's
// value in place with cic, leaving the rest of the message untouched
// (spec §4.5 step 7, §9: the one place in-place mutation is explicit).
func PatchCircuitIdentityCode(l3 []byte, cic uint16) error {
	if len(l3) < 3 {
		return fmt.Errorf("bssmap: layer-3 payload too short for an assignment message")
	}

	body := l3[3:]
	offset := 0
	for offset < len(body) {
		if len(body[offset:]) < 2 {
			return fmt.Errorf("bssmap: truncated TLV header")
		}
		tag, length := body[offset], int(body[offset+1])
		if len(body[offset:]) < 2+length {
			return fmt.Errorf("bssmap: TLV tag %#x length %d exceeds buffer", tag, length)
		}
		if tag == IECircuitIdentityCode {
			if length != 2 {
				return fmt.Errorf("bssmap: circuit identity code has unexpected length %d", length)
			}
			binary.BigEndian.PutUint16(body[offset+2:offset+4], cic)
			return nil
		}
		offset += 2 + length
	}
	return fmt.Errorf("bssmap: circuit identity code not found in assignment message")
}

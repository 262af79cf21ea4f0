package mgcp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"bscnat/trunk"
)

// ParseRequest extracts the verb, transaction id, and endpoint id from the
// first line of a Call-Agent datagram, e.g. "CRCX 1234 1@mgw MGCP 1.0".
// This is the minimal stand-in for the MGCP parser that spec §9 treats as
// an external collaborator (see SPEC_FULL.md §4.E): it is enough to drive
// the policy callback, nothing more — AUEP/RSIP/etc. are not recognized.
func ParseRequest(msg []byte) (verb trunk.VerbState, transactionID string, endpoint int, ok bool) {
	firstLine := msg
	if i := bytes.IndexByte(msg, '\n'); i >= 0 {
		firstLine = msg[:i]
	}
	firstLine = bytes.TrimRight(firstLine, "\r")

	fields := strings.Fields(string(firstLine))
	if len(fields) < 3 {
		return trunk.StateNone, "", 0, false
	}

	switch fields[0] {
	case "CRCX":
		verb = trunk.StateCRCX
	case "MDCX":
		verb = trunk.StateMDCX
	case "DLCX":
		verb = trunk.StateDLCX
	default:
		return trunk.StateNone, "", 0, false
	}

	transactionID = fields[1]

	endpTok := fields[2]
	at := strings.IndexByte(endpTok, '@')
	if at < 0 {
		return trunk.StateNone, "", 0, false
	}
	endp, err := strconv.ParseInt(endpTok[:at], 16, 64)
	if err != nil {
		return trunk.StateNone, "", 0, false
	}

	return verb, transactionID, int(endp), true
}

// ParseResponse parses a BSC reply's status line, "<3-digit code>
// <transaction-id up to 59 chars>" (spec §4.4 step 3).
func ParseResponse(raw []byte) (code int, transactionID string, err error) {
	firstLine := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	firstLine = bytes.TrimRight(firstLine, "\r")

	var tx string
	n, err := fmt.Sscanf(string(firstLine), "%3d %59s", &code, &tx)
	if err != nil || n != 2 {
		return 0, "", fmt.Errorf("mgcp: could not parse response status line %q", firstLine)
	}
	return code, tx, nil
}

// ExtractCI scans a message for an "I: <n>" line and returns the
// connection identifier, or trunk.CIUnused if absent/unparseable
// (spec §4.4 step 5).
func ExtractCI(raw []byte) int64 {
	idx := bytes.Index(raw, []byte("I: "))
	if idx < 0 {
		return trunk.CIUnused
	}

	rest := raw[idx+len("I: "):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return trunk.CIUnused
	}

	ci, err := strconv.ParseUint(string(rest[:end]), 10, 32)
	if err != nil {
		return trunk.CIUnused
	}
	return int64(ci)
}

// Package mgcp implements the line-oriented MGCP/SDP rewriter (spec §4.3)
// and the minimal request/response parsing needed to drive it. It is
// modeled as pure functions from input bytes + parameters to output
// bytes (spec §9): no in-place patching.
package mgcp

import (
	"bytes"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// maxInputLen mirrors the original's "4096 - 256 bytes of headroom" bound.
const maxInputLen = 4096 - 256

// Rewrite rewrites an inbound MGCP message so it is suitable for the
// opposite leg: verb lines get their endpoint id replaced with
// endpointOverride, "c=IN IP4" is replaced with ip, "m=audio" is replaced
// with port, and a trailing "a=fmtp:<payload> mode-set=2" line is
// synthesized if the input had an m=audio line but no a=fmtp line of its
// own (spec §4.3).
func Rewrite(input []byte, endpointOverride int, ip string, port int) ([]byte, error) {
	if len(input) > maxInputLen {
		return nil, fmt.Errorf("mgcp: input too long (%d bytes)", len(input))
	}

	out := make([]byte, 0, len(input)+128)

	foundFmtp := false
	payload := -1
	lastEnding := "\n"

	parts := bytes.Split(input, []byte("\n"))
	for i, part := range parts {
		if i == len(parts)-1 && len(part) == 0 {
			// Nothing follows the final newline; there is no line here.
			continue
		}

		cr := len(part) > 0 && part[len(part)-1] == '\r'
		body := part
		if cr {
			body = part[:len(part)-1]
		}
		ending := "\n"
		if cr {
			ending = "\r\n"
		}
		lastEnding = ending

		switch verb, matched := matchVerb(body); {
		case matched:
			fields := bytes.Fields(body)
			if len(fields) < 2 {
				log.Errorf("mgcp: could not find transaction id in %q, dropping line", body)
				continue
			}
			out = append(out, fmt.Sprintf("%s %s %x@mgw MGCP 1.0%s", verb, fields[1], endpointOverride, ending)...)

		case bytes.HasPrefix(body, []byte("c=IN IP4 ")):
			out = append(out, "c=IN IP4 "...)
			out = append(out, ip...)
			out = append(out, ending...)

		case bytes.HasPrefix(body, []byte("m=audio ")):
			var ignoredPort, pt int
			if _, err := fmt.Sscanf(string(body), "m=audio %d RTP/AVP %d", &ignoredPort, &pt); err != nil {
				return nil, fmt.Errorf("mgcp: could not parse audio line %q: %w", body, err)
			}
			out = append(out, fmt.Sprintf("m=audio %d RTP/AVP %d%s", port, pt, ending)...)
			payload = pt

		case bytes.HasPrefix(body, []byte("a=fmtp:")):
			foundFmtp = true
			out = append(out, body...)
			out = append(out, ending...)

		default:
			out = append(out, body...)
			out = append(out, ending...)
		}
	}

	if !foundFmtp && payload != -1 {
		out = append(out, fmt.Sprintf("a=fmtp:%d mode-set=2%s", payload, lastEnding)...)
	}

	return out, nil
}

func matchVerb(body []byte) (verb string, ok bool) {
	switch {
	case bytes.HasPrefix(body, []byte("CRCX ")):
		return "CRCX", true
	case bytes.HasPrefix(body, []byte("MDCX ")):
		return "MDCX", true
	case bytes.HasPrefix(body, []byte("DLCX ")):
		return "DLCX", true
	default:
		return "", false
	}
}

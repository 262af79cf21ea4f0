package trunk

// Endpoint numbering (spec §3, §4.1): the timeslot occupies the low 5 bits
// (valid range 1..30; 0 and 31 are skipped), the multiplex occupies the
// bits above. A BSSMAP CIC uses the identical (multiplex, timeslot) packing
// (spec §4.5/§6), so the two conversions below share one bit layout.

// TimeslotToEndpoint packs a (multiplex, timeslot) pair into an endpoint id.
func TimeslotToEndpoint(multiplex, timeslot int) int {
	return (multiplex << 5) | (timeslot & 0x1f)
}

// EndpointToTimeslot unpacks an endpoint id back into (multiplex, timeslot).
func EndpointToTimeslot(endpoint int) (multiplex, timeslot int) {
	return endpoint >> 5, endpoint & 0x1f
}

// CICEncode packs a (multiplex, timeslot) pair into a 16-bit CIC value.
func CICEncode(multiplex, timeslot int) uint16 {
	return uint16((multiplex << 5) | (timeslot & 0x1f))
}

// CICDecode unpacks a 16-bit CIC value back into (multiplex, timeslot).
func CICDecode(cic uint16) (multiplex, timeslot int) {
	return int(cic) >> 5, int(cic) & 0x1f
}

// CreateCIC derives the CIC that re-identifies a downstream endpoint id.
func CreateCIC(endpoint int) uint16 {
	multiplex, timeslot := EndpointToTimeslot(endpoint)
	return CICEncode(multiplex, timeslot)
}

// NumberMultiplexes returns ceil(maxEndpoints/32).
func NumberMultiplexes(maxEndpoints int) int {
	n := maxEndpoints / 32
	if maxEndpoints%32 != 0 {
		n++
	}
	return n
}

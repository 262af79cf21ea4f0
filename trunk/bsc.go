package trunk

import (
	"fmt"

	"bscnat/metrics"
)

// ErrAllocatorFull is returned by Allocate when a BSC has no free endpoint.
var ErrAllocatorFull = fmt.Errorf("trunk: no free endpoint")

// BSC is a downstream base station controller's private endpoint range
// (spec §3, "BSC session state"). Its status array is lazily initialized
// on first allocation and owned by the session, freed with it.
type BSC struct {
	Name              string
	Trunk             *Trunk
	MaxEndpoints      int
	NumberMultiplexes int
	status            []byte // 0=free, 1=in-use; index 0 unused
	lastEndpoint      int
	inUse             int

	// PeerAddr is the BSC's current TCP peer address, recorded by the
	// transport when the connection is accepted and copied to the
	// endpoint's bts-end peer at CRCX time (spec §4.2 step 5, §6 "BSC
	// transport").
	PeerAddr string

	// ExpectedAddr is the configured source address this BSC dials in
	// from (spec §6.E config, BSCEntry.ListenAddr). Unlike PeerAddr, it
	// is fixed at configuration time and is what a newly accepted TCP
	// connection is identified against — see transport.Registry.identify.
	ExpectedAddr string
}

// NewBSC creates a session bound to trunk with the given max endpoint
// count. Initialization of the status array is deferred until Allocate.
func NewBSC(name string, t *Trunk, maxEndpoints int) *BSC {
	return &BSC{Name: name, Trunk: t, MaxEndpoints: maxEndpoints}
}

func (b *BSC) ensureInit() error {
	if b.status != nil {
		return nil
	}
	if b.MaxEndpoints <= 0 {
		return fmt.Errorf("trunk: bsc %q has no endpoint configuration", b.Name)
	}
	b.NumberMultiplexes = NumberMultiplexes(b.MaxEndpoints)
	b.status = make([]byte, 32*b.NumberMultiplexes+1)
	b.lastEndpoint = 0
	return nil
}

// Initialized reports whether the status array has been allocated.
func (b *BSC) Initialized() bool {
	return b.status != nil
}

// InUse reports the in-use bit for endpoint (false if not yet initialized
// or out of range).
func (b *BSC) InUse(endpoint int) bool {
	if b.status == nil || endpoint < 0 || endpoint >= len(b.status) {
		return false
	}
	return b.status[endpoint] == 1
}

// Allocate scans for a free endpoint starting just after lastEndpoint,
// wrapping timeslots (skipping 0 and 31) and multiplexes, per spec §4.1.
func (b *BSC) Allocate() (int, error) {
	if err := b.ensureInit(); err != nil {
		return 0, err
	}

	multiplex, timeslot := EndpointToTimeslot(b.lastEndpoint)
	timeslot++

	for i := 0; i < b.MaxEndpoints; i++ {
		if timeslot == 0 {
			timeslot = 1
		}
		if timeslot == 0x1f {
			timeslot = 1
			multiplex++
		}
		if multiplex >= b.NumberMultiplexes {
			multiplex = 0
		}

		endpoint := TimeslotToEndpoint(multiplex, timeslot)
		if endpoint > b.MaxEndpoints {
			multiplex = 0
			timeslot = 1
			endpoint = TimeslotToEndpoint(multiplex, timeslot)
		}

		if b.status[endpoint] == 0 {
			b.status[endpoint] = 1
			b.lastEndpoint = endpoint
			b.inUse++
			metrics.EndpointsInUse.WithLabelValues(b.Name).Set(float64(b.inUse))
			return endpoint, nil
		}

		timeslot++
	}

	return 0, ErrAllocatorFull
}

// Free releases endpoint back to the pool. It is a no-op if the status
// array has not been initialized yet or endpoint was already free.
func (b *BSC) Free(endpoint int) {
	if b.status == nil || endpoint < 0 || endpoint >= len(b.status) {
		return
	}
	if b.status[endpoint] == 0 {
		return
	}
	b.status[endpoint] = 0
	b.inUse--
	metrics.EndpointsInUse.WithLabelValues(b.Name).Set(float64(b.inUse))
}

// ReleaseAll releases the BSC's entire endpoint-status array in one step
// (spec §4.7: "the status array is released with the BSC session"),
// rather than freeing endpoints one at a time. Used on BSC disconnect.
func (b *BSC) ReleaseAll() {
	b.status = nil
	b.inUse = 0
	b.lastEndpoint = 0
	metrics.EndpointsInUse.WithLabelValues(b.Name).Set(0)
}

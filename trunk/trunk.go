// Package trunk implements the fixed-size collection of media endpoints
// the Call Agent addresses in a single global space (spec §3, §4.1), and
// the per-BSC private endpoint range and bitmap allocator that backs it.
package trunk

// Trunk is the NAT-owned collection of network-side endpoint slots and
// their pending MGCP transactions. Index 0 is reserved; valid endpoints
// run 1..NumberEndpoints.
type Trunk struct {
	NumberEndpoints int
	Endpoints       []Endpoint
	Pending         []PendingTransaction

	// RTP port bases: local ports are out of scope for rewriting per se
	// (spec §1 Non-goals: "does not perform RTP forwarding"), but the
	// rewriter still needs a concrete port value per endpoint to embed
	// in SDP. Each endpoint gets a fixed, deterministic port derived from
	// its id, the common convention for a fixed-endpoint media gateway.
	RTPBaseNet int
	RTPBaseBts int
}

// New allocates a trunk sized for numberEndpoints+1 slots (index 0 unused).
func New(numberEndpoints int) *Trunk {
	return &Trunk{
		NumberEndpoints: numberEndpoints,
		Endpoints:       make([]Endpoint, numberEndpoints+1),
		Pending:         make([]PendingTransaction, numberEndpoints+1),
	}
}

// WithRTPBase sets the per-endpoint RTP port bases and returns t for
// chaining at construction time.
func (t *Trunk) WithRTPBase(netBase, btsBase int) *Trunk {
	t.RTPBaseNet = netBase
	t.RTPBaseBts = btsBase
	return t
}

// NetLocalPort returns the fixed local RTP port of endpoint's network end.
func (t *Trunk) NetLocalPort(endpoint int) int {
	return t.RTPBaseNet + 2*endpoint
}

// BtsLocalPort returns the fixed local RTP port of endpoint's bts end.
func (t *Trunk) BtsLocalPort(endpoint int) int {
	return t.RTPBaseBts + 2*endpoint
}

func (t *Trunk) valid(endpoint int) bool {
	return endpoint >= 1 && endpoint < len(t.Endpoints)
}

// At returns a pointer to the endpoint slot, or nil if out of range.
func (t *Trunk) At(endpoint int) *Endpoint {
	if !t.valid(endpoint) {
		return nil
	}
	return &t.Endpoints[endpoint]
}

// PendingAt returns the pending transaction for endpoint, or a zero value
// if out of range.
func (t *Trunk) PendingAt(endpoint int) PendingTransaction {
	if !t.valid(endpoint) {
		return PendingTransaction{}
	}
	return t.Pending[endpoint]
}

// SetPending records a pending transaction for endpoint.
func (t *Trunk) SetPending(endpoint int, txID string, state VerbState, bsc *BSC) {
	if !t.valid(endpoint) {
		return
	}
	t.Pending[endpoint] = PendingTransaction{TransactionID: txID, State: state, BSC: bsc}
}

// ClearPending frees the pending slot for endpoint (releases the
// transaction id, resets state, and clears the weak BSC back-pointer).
func (t *Trunk) ClearPending(endpoint int) {
	if !t.valid(endpoint) {
		return
	}
	t.Pending[endpoint] = PendingTransaction{}
}

// FindByTransaction scans the pending table for the slot belonging to bsc
// with the given transaction id (spec §4.4 step 4: "first match wins").
func (t *Trunk) FindByTransaction(bsc *BSC, transactionID string) int {
	for i := 1; i < len(t.Pending); i++ {
		p := t.Pending[i]
		if p.BSC == bsc && p.TransactionID == transactionID {
			return i
		}
	}
	return 0
}

// FreeAllForBSC clears every pending slot owned by bsc and resets the
// corresponding network-side endpoint halves, returning the endpoint ids
// that were freed (spec §4.7, BSC disconnect; original
// bsc_mgcp_clear_endpoints_for / mgcp_free_endp).
func (t *Trunk) FreeAllForBSC(bsc *BSC) []int {
	var freed []int
	for i := 1; i < len(t.Pending); i++ {
		if t.Pending[i].BSC == bsc {
			t.Pending[i] = PendingTransaction{}
			t.Endpoints[i] = Endpoint{}
			freed = append(freed, i)
		}
	}
	return freed
}

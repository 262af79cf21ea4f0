package trunk

// CIUnused is the sentinel connection identifier meaning "no CI assigned".
const CIUnused int64 = -1

// EndpointHalf is one side (network or bts) of a trunk endpoint: a local
// UDP port, the peer's IPv4 address, and the CI the peer returned for it.
type EndpointHalf struct {
	LocalPort int
	PeerAddr  string
	CI        int64
}

// Endpoint is a single trunk slot, addressed 1..NumberEndpoints.
type Endpoint struct {
	Net EndpointHalf
	Bts EndpointHalf
}

// VerbState is the MGCP verb a pending transaction is waiting on.
type VerbState string

const (
	StateNone VerbState = ""
	StateCRCX VerbState = "CRCX"
	StateMDCX VerbState = "MDCX"
	StateDLCX VerbState = "DLCX"
)

// PendingTransaction correlates a Call-Agent request with the BSC reply
// expected to answer it (spec §3, "Pending transaction slot"). The
// invariant is: TransactionID != "" iff State != StateNone iff BSC != nil.
type PendingTransaction struct {
	TransactionID string
	State         VerbState
	BSC           *BSC
}

func (p PendingTransaction) Empty() bool {
	return p.State == StateNone
}

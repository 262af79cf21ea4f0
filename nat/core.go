// Package nat implements the bridging core: the policy decision that
// drives CRCX/MDCX/DLCX handling (spec §4.2), the BSC reply forwarder
// (§4.4), the BSSMAP assignment patcher's session-level half (§4.5), and
// the teardown/disconnect cleanups (§4.6, §4.7). It is the component
// that ties trunk, sccp, mgcp, and bssmap together.
package nat

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"bscnat/mgcp"
	"bscnat/metrics"
	"bscnat/sccp"
	"bscnat/trunk"
)

// Decision is the policy callback's sum-type result (spec §9: "better
// expressed as an explicit return-value sum type than a dispatched
// callback").
type Decision int

const (
	Reject Decision = iota
	Continue
	Defer
)

func (d Decision) String() string {
	switch d {
	case Reject:
		return "REJECT"
	case Continue:
		return "CONTINUE"
	case Defer:
		return "DEFER"
	default:
		return "UNKNOWN"
	}
}

// BSCSender delivers a framed MGCP message to a specific downstream BSC
// (spec §6, "BSC transport"). Implemented by the transport package.
type BSCSender interface {
	SendToBSC(bsc *trunk.BSC, msg []byte)
}

// AgentSender delivers an MGCP message to the Call Agent, either over
// the plain UDP socket or tunnelled per mgcp_ipa (spec §6, "Call Agent
// transport"). Implemented by the transport package.
type AgentSender interface {
	SendToAgent(msg []byte)
}

// AuditLogger is the optional per-BSC call-trace sink (SPEC_FULL §4.E).
// A nil AuditLog on Core disables tracing.
type AuditLogger interface {
	Record(bscName, verb, transactionID, outcome string)
}

// Core holds everything the bridging logic needs: the trunk, the SCCP
// session table it only observes, and the two transports it drives.
type Core struct {
	Trunk      *trunk.Trunk
	SCCP       *sccp.Table
	BSCOut     BSCSender
	AgentOut   AgentSender
	SourceAddr string
	AuditLog   AuditLogger
}

func New(t *trunk.Trunk, sessions *sccp.Table, bscOut BSCSender, agentOut AgentSender, sourceAddr string) *Core {
	return &Core{Trunk: t, SCCP: sessions, BSCOut: bscOut, AgentOut: agentOut, SourceAddr: sourceAddr}
}

func (c *Core) audit(bscName, verb, transactionID, outcome string) {
	if c.AuditLog != nil {
		c.AuditLog.Record(bscName, verb, transactionID, outcome)
	}
}

// OnVerb is the policy callback invoked by the MGCP parser for every
// CRCX/MDCX/DLCX from the Call Agent (spec §4.2). raw is the original
// inbound message, needed to compute the rewrite in step 3 — the
// distilled spec treats the parser purely as `on_verb(endpoint, verb,
// transaction_id)`, but a concrete implementation has to thread the
// bytes through somehow; see SPEC_FULL.md §4.E.
func (c *Core) OnVerb(endpoint int, verb trunk.VerbState, transactionID string, raw []byte) Decision {
	slot := c.Trunk.PendingAt(endpoint)
	if !slot.Empty() {
		log.Errorf("nat: endpoint %#x had a pending %s transaction %q still in flight; replacing with %s %q",
			endpoint, slot.State, slot.TransactionID, verb, transactionID)
	}
	c.Trunk.ClearPending(endpoint)

	session := c.SCCP.FindByMSCEndp(endpoint)
	if session == nil {
		switch verb {
		case trunk.StateCRCX:
			log.Errorf("nat: CRCX for endpoint %#x with no assigned SCCP session", endpoint)
			return Reject
		case trunk.StateDLCX, trunk.StateMDCX:
			return Continue
		default:
			log.Errorf("nat: unexpected verb state %q for endpoint %#x", verb, endpoint)
			return Continue
		}
	}

	bsc := session.BSC
	rewritten, err := mgcp.Rewrite(raw, session.BSCEndp, c.SourceAddr, c.Trunk.BtsLocalPort(endpoint))
	if err != nil {
		log.Errorf("nat: rewrite failed for endpoint %#x transaction %q: %v", endpoint, transactionID, err)
		c.audit(bsc.Name, string(verb), transactionID, "rewrite-failed")
		return Continue
	}

	c.Trunk.SetPending(endpoint, transactionID, verb, bsc)

	switch verb {
	case trunk.StateCRCX:
		netEnd := c.Trunk.At(endpoint)
		netEnd.Bts.PeerAddr = bsc.PeerAddr
		c.BSCOut.SendToBSC(bsc, rewritten)

		aux := fmt.Sprintf("MDCX 23 %x@mgw MGCP 1.0\r\n"+
			"Z: noanswer\r\n\r\n"+
			"c=IN IP4 %s\r\n"+
			"m=audio %d RTP/AVP 255\r\n",
			session.BSCEndp, c.SourceAddr, c.Trunk.BtsLocalPort(endpoint))
		c.BSCOut.SendToBSC(bsc, []byte(aux))

		c.audit(bsc.Name, string(verb), transactionID, "deferred")
		return Defer

	case trunk.StateMDCX:
		c.BSCOut.SendToBSC(bsc, rewritten)
		c.audit(bsc.Name, string(verb), transactionID, "deferred")
		return Defer

	case trunk.StateDLCX:
		c.Teardown(session)
		c.audit(bsc.Name, string(verb), transactionID, "torn-down")
		return Continue
	}

	return Continue
}

// Teardown tears down an SCCP session's media state (spec §4.6).
func (c *Core) Teardown(session *sccp.Session) {
	if session.BSCEndp == sccp.Unbound || !session.BSC.Initialized() {
		session.MSCEndp, session.BSCEndp = sccp.Unbound, sccp.Unbound
		return
	}

	bsc := session.BSC
	if !bsc.InUse(session.BSCEndp) {
		log.Errorf("nat: teardown for bsc %q endpoint %#x that was not marked in-use", bsc.Name, session.BSCEndp)
	}
	bsc.Free(session.BSCEndp)

	dlcx := fmt.Sprintf("DLCX 26 %x@mgw MGCP 1.0\r\nZ: noanswer\r\n", session.BSCEndp)
	c.BSCOut.SendToBSC(bsc, []byte(dlcx))

	if session.MSCEndp != sccp.Unbound {
		c.Trunk.ClearPending(session.MSCEndp)
	}
	session.MSCEndp, session.BSCEndp = sccp.Unbound, sccp.Unbound
}

// BSCDisconnected runs the bulk-free cleanup for every endpoint pending
// transaction owned by bsc (spec §4.7).
func (c *Core) BSCDisconnected(bsc *trunk.BSC) {
	freed := c.Trunk.FreeAllForBSC(bsc)
	for range freed {
		metrics.DroppedCalls.Inc()
	}
	bsc.ReleaseAll()
	log.Infof("nat: bsc %q disconnected, freed %d pending endpoints", bsc.Name, len(freed))
}

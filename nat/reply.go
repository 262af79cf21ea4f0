package nat

import (
	log "github.com/sirupsen/logrus"

	"bscnat/mgcp"
	"bscnat/trunk"
)

const maxReplyLen = 2000

// ForwardReply handles a raw reply from bsc, correlating it against the
// pending-transaction table and forwarding the rewritten result to the
// Call Agent (spec §4.4).
func (c *Core) ForwardReply(bsc *trunk.BSC, raw []byte) {
	if len(raw) > maxReplyLen {
		log.Errorf("nat: reply from bsc %q too long (%d bytes), dropping", bsc.Name, len(raw))
		return
	}

	code, transactionID, err := mgcp.ParseResponse(raw)
	if err != nil {
		log.Errorf("nat: failed to parse response from bsc %q: %v", bsc.Name, err)
		return
	}

	endpoint := c.Trunk.FindByTransaction(bsc, transactionID)
	if endpoint == 0 {
		log.Errorf("nat: could not find active endpoint for transaction %q from bsc %q (code %d)",
			transactionID, bsc.Name, code)
		return
	}
	pending := c.Trunk.PendingAt(endpoint)

	ci := mgcp.ExtractCI(raw)
	if ci == trunk.CIUnused {
		log.Errorf("nat: no CI in reply, freeing endpoint %#x (state %s)", endpoint, pending.State)
		if pending.State == trunk.StateCRCX {
			if session := c.SCCP.FindByMSCEndp(endpoint); session != nil {
				if session.BSC == bsc {
					c.Teardown(session)
				} else {
					log.Errorf("nat: endpoint %#x belongs to a different bsc", endpoint)
				}
			} else {
				log.Errorf("nat: no SCCP session for endpoint %#x", endpoint)
			}
		}
		c.Trunk.ClearPending(endpoint)
		return
	}

	netEnd := c.Trunk.At(endpoint)
	netEnd.Net.CI = ci
	c.Trunk.ClearPending(endpoint)

	rewritten, err := mgcp.Rewrite(raw, -1, c.SourceAddr, c.Trunk.NetLocalPort(endpoint))
	if err != nil {
		log.Errorf("nat: failed to rewrite reply for endpoint %#x: %v", endpoint, err)
		return
	}

	c.AgentOut.SendToAgent(rewritten)
}

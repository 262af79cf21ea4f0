package nat

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"bscnat/bssmap"
	"bscnat/sccp"
	"bscnat/trunk"
)

// AssignEndpoint implements the session-facing half of the BSSMAP
// assignment patcher (spec §4.5): it decodes the CIC carried in an
// ASSIGNMENT REQUEST's layer-3 payload, resolves the upstream endpoint,
// evicts any stale session already sitting on it, allocates a downstream
// endpoint, and patches the CIC TLV in place for the outbound leg to the
// BSC that owns session.
func (c *Core) AssignEndpoint(session *sccp.Session, l3 []byte) error {
	cic, err := bssmap.CircuitIdentityCode(l3)
	if err != nil {
		return fmt.Errorf("nat: assignment patch: %w", err)
	}

	multiplex, timeslot := trunk.CICDecode(cic)
	endpoint := trunk.TimeslotToEndpoint(multiplex, timeslot)
	if endpoint >= c.Trunk.NumberEndpoints {
		return fmt.Errorf("nat: msc attempted to assign bad endpoint %#x", endpoint)
	}

	for _, stale := range c.SCCP.AllWithMSCEndp(endpoint, session) {
		log.Errorf("nat: endpoint %#x was reassigned, tearing down the stale session on it", endpoint)
		c.Teardown(stale)
	}

	session.MSCEndp = endpoint

	bscEndp, err := session.BSC.Allocate()
	if err != nil {
		return fmt.Errorf("nat: assignment patch: %w", err)
	}
	session.BSCEndp = bscEndp

	newCIC := trunk.CreateCIC(bscEndp)
	if err := bssmap.PatchCircuitIdentityCode(l3, newCIC); err != nil {
		session.BSC.Free(bscEndp)
		session.MSCEndp, session.BSCEndp = sccp.Unbound, sccp.Unbound
		return fmt.Errorf("nat: assignment patch: %w", err)
	}

	return nil
}

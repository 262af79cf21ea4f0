package nat

import (
	"strings"
	"testing"

	"bscnat/sccp"
	"bscnat/trunk"
)

type fakeBSCSender struct {
	sent [][]byte
}

func (f *fakeBSCSender) SendToBSC(bsc *trunk.BSC, msg []byte) {
	f.sent = append(f.sent, msg)
}

type fakeAgentSender struct {
	sent [][]byte
}

func (f *fakeAgentSender) SendToAgent(msg []byte) {
	f.sent = append(f.sent, msg)
}

func newTestCore(maxEndpoints int) (*Core, *trunk.BSC, *fakeBSCSender, *fakeAgentSender) {
	tr := trunk.New(64).WithRTPBase(16000, 26000)
	bsc := trunk.NewBSC("bts0", tr, maxEndpoints)
	bsc.PeerAddr = "10.1.1.1"
	sessions := sccp.NewTable()
	bscOut := &fakeBSCSender{}
	agentOut := &fakeAgentSender{}
	core := New(tr, sessions, bscOut, agentOut, "172.16.0.1")
	return core, bsc, bscOut, agentOut
}

func buildAssignmentL3(cic uint16) []byte {
	return []byte{0x00, 0x00, 0x00, 0x01, 0x02, byte(cic >> 8), byte(cic)}
}

func TestAssignmentCRCXAndReply(t *testing.T) {
	core, bsc, bscOut, agentOut := newTestCore(32)
	session := sccp.New(bsc)
	core.SCCP.Add(session)

	l3 := buildAssignmentL3(0x0021) // multiplex=1, timeslot=1
	if err := core.AssignEndpoint(session, l3); err != nil {
		t.Fatalf("AssignEndpoint: %v", err)
	}
	if session.BSCEndp != 0x0001 {
		t.Fatalf("session.BSCEndp = %#x, want 0x0001 on a fresh BSC", session.BSCEndp)
	}

	crcx := "CRCX 1234 " + itoaHex(session.MSCEndp) + "@mgw MGCP 1.0\r\n\r\nc=IN IP4 1.1.1.1\r\nm=audio 4000 RTP/AVP 8\r\n"
	decision := core.OnVerb(session.MSCEndp, trunk.StateCRCX, "1234", []byte(crcx))
	if decision != Defer {
		t.Fatalf("OnVerb(CRCX) = %v, want Defer", decision)
	}
	if len(bscOut.sent) != 2 {
		t.Fatalf("expected a CRCX and an auxiliary MDCX sent to the bsc, got %d messages", len(bscOut.sent))
	}

	crcxSent := string(bscOut.sent[0])
	if !strings.Contains(crcxSent, "CRCX 1234 "+itoaHex(session.BSCEndp)+"@mgw") {
		t.Fatalf("CRCX sent to bsc has wrong endpoint: %q", crcxSent)
	}
	if !strings.Contains(crcxSent, "c=IN IP4 172.16.0.1") {
		t.Fatalf("CRCX sent to bsc should carry the NAT source address: %q", crcxSent)
	}
	if !strings.Contains(crcxSent, "a=fmtp:8 mode-set=2") {
		t.Fatalf("CRCX sent to bsc should carry a synthesized fmtp line: %q", crcxSent)
	}

	aux := string(bscOut.sent[1])
	if !strings.Contains(aux, "MDCX 23 ") {
		t.Fatalf("auxiliary message should be MDCX 23: %q", aux)
	}

	reply := "200 1234\r\nI: 57\r\n"
	core.ForwardReply(bsc, []byte(reply))
	if len(agentOut.sent) != 1 {
		t.Fatalf("expected one reply forwarded to the call agent, got %d", len(agentOut.sent))
	}
	if core.Trunk.At(session.MSCEndp).Net.CI != 57 {
		t.Fatalf("reply should have stored CI 57 on the net end")
	}

	agentOut.sent = nil
	core.ForwardReply(bsc, []byte(reply))
	if len(agentOut.sent) != 0 {
		t.Fatal("a duplicate reply with a cleared transaction id should be dropped")
	}
}

func TestDLCXFromCallAgentTearsDown(t *testing.T) {
	core, bsc, bscOut, _ := newTestCore(32)
	session := sccp.New(bsc)
	core.SCCP.Add(session)
	core.AssignEndpoint(session, buildAssignmentL3(0x0021))
	bscEndp := session.BSCEndp

	decision := core.OnVerb(session.MSCEndp, trunk.StateDLCX, "9", []byte("DLCX 9 "+itoaHex(session.MSCEndp)+"@mgw MGCP 1.0\r\n"))
	if decision != Continue {
		t.Fatalf("OnVerb(DLCX) = %v, want Continue", decision)
	}
	if bsc.InUse(bscEndp) {
		t.Fatal("endpoint should be freed after DLCX teardown")
	}
	if session.MSCEndp != sccp.Unbound || session.BSCEndp != sccp.Unbound {
		t.Fatal("session should be unbound after teardown")
	}

	found := false
	for _, msg := range bscOut.sent {
		if strings.HasPrefix(string(msg), "DLCX 26 ") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a downstream DLCX 26 to be sent to the bsc")
	}
}

func TestCICReuseCollisionTearsDownStaleSession(t *testing.T) {
	core, bsc, bscOut, _ := newTestCore(32)
	first := sccp.New(bsc)
	core.SCCP.Add(first)
	if err := core.AssignEndpoint(first, buildAssignmentL3(0x0021)); err != nil {
		t.Fatalf("first AssignEndpoint: %v", err)
	}

	second := sccp.New(bsc)
	core.SCCP.Add(second)
	if err := core.AssignEndpoint(second, buildAssignmentL3(0x0021)); err != nil {
		t.Fatalf("second AssignEndpoint: %v", err)
	}

	if first.MSCEndp != sccp.Unbound {
		t.Fatal("the stale session should have been torn down by the collision")
	}

	dlcxCount := 0
	for _, msg := range bscOut.sent {
		if strings.HasPrefix(string(msg), "DLCX 26 ") {
			dlcxCount++
		}
	}
	if dlcxCount != 1 {
		t.Fatalf("expected exactly one DLCX from the collision teardown, got %d", dlcxCount)
	}
}

func TestAllocatorExhaustionFailsAssignment(t *testing.T) {
	core, bsc, _, _ := newTestCore(2)

	first := sccp.New(bsc)
	core.SCCP.Add(first)
	if err := core.AssignEndpoint(first, buildAssignmentL3(0x0021)); err != nil {
		t.Fatalf("first AssignEndpoint: %v", err)
	}
	second := sccp.New(bsc)
	core.SCCP.Add(second)
	if err := core.AssignEndpoint(second, buildAssignmentL3(0x0022)); err != nil {
		t.Fatalf("second AssignEndpoint: %v", err)
	}

	third := sccp.New(bsc)
	core.SCCP.Add(third)
	if err := core.AssignEndpoint(third, buildAssignmentL3(0x0023)); err == nil {
		t.Fatal("third AssignEndpoint on a 2-endpoint bsc should fail (allocator exhaustion)")
	}
}

func TestMalformedReplyTearsDownAndFreesEndpoint(t *testing.T) {
	core, bsc, bscOut, _ := newTestCore(32)
	session := sccp.New(bsc)
	core.SCCP.Add(session)
	core.AssignEndpoint(session, buildAssignmentL3(0x0021))
	bscEndp := session.BSCEndp

	crcx := "CRCX 1234 " + itoaHex(session.MSCEndp) + "@mgw MGCP 1.0\r\n\r\nc=IN IP4 1.1.1.1\r\nm=audio 4000 RTP/AVP 8\r\n"
	core.OnVerb(session.MSCEndp, trunk.StateCRCX, "1234", []byte(crcx))

	bscOut.sent = nil
	core.ForwardReply(bsc, []byte("400 1234\r\n"))

	if bsc.InUse(bscEndp) {
		t.Fatal("endpoint should be freed after a CI-less reply to a CRCX")
	}
	found := false
	for _, msg := range bscOut.sent {
		if strings.HasPrefix(string(msg), "DLCX 26 ") {
			found = true
		}
	}
	if !found {
		t.Fatal("a CI-less reply to a pending CRCX should trigger a downstream DLCX")
	}
}

func itoaHex(n int) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n%16]
		n /= 16
	}
	return string(buf[i:])
}

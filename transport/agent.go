package transport

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"bscnat/nat"
)

const maxAgentDatagram = 4096

// AgentLink is the UDP socket connected to the Call Agent (spec §6,
// "Call Agent transport"). Framing is native UDP datagram boundaries —
// no IPA header, unlike the BSC side.
//
// Modeled after go-sol's readCh/writeCh/done channel triple (sol.go),
// adapted to a connected UDP socket instead of a reliability-layered
// RMCP+ session.
type AgentLink struct {
	conn    *net.UDPConn
	writeCh chan []byte
	done    chan struct{}
	recv    AgentReceiver
}

// AgentReceiver is notified of every datagram read from the Call Agent.
type AgentReceiver interface {
	OnAgentMessage(raw []byte)
}

// Dial opens a UDP socket bound to localAddr and connected to
// agentAddr (spec §6: "a UDP socket bound to (source_addr, source_port)
// connected to (call_agent_addr, 2727)").
func Dial(localAddr, agentAddr string, recv AgentReceiver) (*AgentLink, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve local addr %s: %w", localAddr, err)
	}
	remote, err := net.ResolveUDPAddr("udp", agentAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve call agent addr %s: %w", agentAddr, err)
	}

	conn, err := net.DialUDP("udp", local, remote)
	if err != nil {
		return nil, fmt.Errorf("transport: dial call agent %s: %w", agentAddr, err)
	}

	link := &AgentLink{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		done:    make(chan struct{}),
		recv:    recv,
	}

	go link.readLoop()
	go link.writeLoop()

	return link, nil
}

// SetReceiver wires the link to its receiver after construction,
// mirroring transport.Registry.SetReceivers for the same reason: the
// core needs an AgentSender to exist before it can be built, and the
// link needs the core as its AgentReceiver.
func (l *AgentLink) SetReceiver(recv AgentReceiver) {
	l.recv = recv
}

func (l *AgentLink) readLoop() {
	buf := make([]byte, maxAgentDatagram)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		n, err := l.conn.Read(buf)
		if err != nil {
			select {
			case <-l.done:
			default:
				log.Errorf("transport: call agent read failed: %v", err)
			}
			return
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		if l.recv != nil {
			l.recv.OnAgentMessage(msg)
		}
	}
}

func (l *AgentLink) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.writeCh:
			if _, err := l.conn.Write(msg); err != nil {
				log.Errorf("transport: call agent write failed: %v", err)
			}
		}
	}
}

// SendToAgent implements nat.AgentSender. UDP semantics mean a failed
// enqueue is simply dropped and logged (spec §5, "Backpressure").
func (l *AgentLink) SendToAgent(msg []byte) {
	select {
	case l.writeCh <- msg:
	default:
		log.Errorf("transport: call agent write queue full, dropping message")
	}
}

// Close shuts down the link.
func (l *AgentLink) Close() {
	close(l.done)
	l.conn.Close()
}

var _ nat.AgentSender = (*AgentLink)(nil)

// Package transport implements the two physical connections the core
// drives: a TCP listener the downstream BSCs dial into (spec §6, "BSC
// transport") and a UDP client connected to the Call Agent (spec §6,
// "Call Agent transport").
//
// Grounded on sol/manager.go's session-map + mutex + per-session
// goroutine shape; unlike the teacher (which dials *out* to a BMC with
// backoff), the NAT here is the TCP server and BSCs dial *in*.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"bscnat/nat"
	"bscnat/trunk"
)

// ipaProtoMGCPOld is the IPA multiplex protocol id carrying MGCP
// messages (spec §6: "framed MGCP messages on protocol id
// IPAC_PROTO_MGCP_OLD").
const ipaProtoMGCPOld = 0xfc

// ipaHeaderLen is the length of the osmocom IPA stream header: a 2-byte
// big-endian payload length followed by a 1-byte protocol/stream id.
const ipaHeaderLen = 3

// Disconnector is notified when a BSC connection is lost (spec §4.7).
type Disconnector interface {
	BSCDisconnected(bsc *trunk.BSC)
}

// Receiver is notified of every framed message a BSC connection
// delivers.
type Receiver interface {
	ForwardReply(bsc *trunk.BSC, raw []byte)
}

// bscConn is one accepted BSC TCP connection: a write queue feeding a
// dedicated writer goroutine, and a reader goroutine dispatching framed
// messages into the core.
type bscConn struct {
	bsc     *trunk.BSC
	conn    net.Conn
	writeCh chan []byte
	done    chan struct{}
}

// Registry is the NAT-wide set of live BSC connections, keyed by BSC
// name (spec §2.E, "BSC connection registry").
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*bscConn

	listener net.Listener
	bscs     map[string]*trunk.BSC // configured BSC sessions, keyed by name
	recv     Receiver
	disc     Disconnector
}

func NewRegistry(bscs map[string]*trunk.BSC, recv Receiver, disc Disconnector) *Registry {
	return &Registry{
		conns: make(map[string]*bscConn),
		bscs:  bscs,
		recv:  recv,
		disc:  disc,
	}
}

// SetReceivers wires the registry to the core after both have been
// constructed, breaking the construction cycle between nat.Core (which
// needs a BSCSender) and Registry (which needs a Receiver/Disconnector).
func (r *Registry) SetReceivers(recv Receiver, disc Disconnector) {
	r.recv = recv
	r.disc = disc
}

// UpdateBSCs swaps in a freshly reloaded allowlist (spec §6.E config
// hot-reload). Live connections for BSCs no longer present are closed;
// everything else (trunk state, in-flight allocations) is untouched.
func (r *Registry) UpdateBSCs(bscs map[string]*trunk.BSC) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, c := range r.conns {
		if _, ok := bscs[name]; !ok {
			close(c.done)
			c.conn.Close()
			delete(r.conns, name)
		}
	}
	r.bscs = bscs
}

// Listen starts accepting BSC connections on addr. It blocks until the
// listener is closed.
func (r *Registry) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", addr, err)
	}
	r.listener = ln

	log.Infof("transport: accepting bsc connections on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go r.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (r *Registry) Close() {
	if r.listener != nil {
		r.listener.Close()
	}
}

func (r *Registry) handleConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	host, _, _ := net.SplitHostPort(peer)

	bsc, name := r.identify(host)
	if bsc == nil {
		log.Errorf("transport: rejecting connection from %s: not a configured bsc", peer)
		conn.Close()
		return
	}

	bsc.PeerAddr = host

	c := &bscConn{bsc: bsc, conn: conn, writeCh: make(chan []byte, 64), done: make(chan struct{})}

	r.mu.Lock()
	if existing, ok := r.conns[name]; ok {
		close(existing.done)
		existing.conn.Close()
	}
	r.conns[name] = c
	r.mu.Unlock()

	log.Infof("transport: bsc %q connected from %s", name, peer)

	go r.writeLoop(c)
	r.readLoop(c, name)
}

// identify learns which configured BSC an inbound connection belongs to.
// A real IPA link performs an ID/PING handshake first; here, the first
// framed MGCP message's endpoint ownership is not known yet, so
// identification is keyed by source address against each BSC's fixed,
// configured ExpectedAddr (spec §6's BSC allowlist) — never against
// PeerAddr, which this same registry only learns and sets *after* a
// connection is accepted, and which starts empty for every BSC.
func (r *Registry) identify(host string) (*trunk.BSC, string) {
	for name, bsc := range r.bscs {
		if bsc.ExpectedAddr != "" && bsc.ExpectedAddr == host {
			return bsc, name
		}
	}
	return nil, ""
}

func (r *Registry) writeLoop(c *bscConn) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.writeCh:
			frame := frameIPA(msg)
			if _, err := c.conn.Write(frame); err != nil {
				log.Errorf("transport: write to bsc %q failed: %v", c.bsc.Name, err)
				return
			}
		}
	}
}

func (r *Registry) readLoop(c *bscConn, name string) {
	defer func() {
		r.mu.Lock()
		owned := r.conns[name] == c
		if owned {
			delete(r.conns, name)
		}
		r.mu.Unlock()
		// UpdateBSCs and a replacing handleConn close done themselves when
		// they drop c from the registry.
		if owned {
			close(c.done)
		}
		c.conn.Close()
		log.Infof("transport: bsc %q disconnected", name)
		if r.disc != nil {
			r.disc.BSCDisconnected(c.bsc)
		}
	}()

	for {
		msg, err := readIPAFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				log.Errorf("transport: read from bsc %q failed: %v", name, err)
			}
			return
		}
		if r.recv != nil {
			r.recv.ForwardReply(c.bsc, msg)
		}
	}
}

// SendToBSC implements nat.BSCSender by enqueueing msg on the named
// BSC's write queue; a full queue drops the message (spec §5,
// "Backpressure... overflow handling is the BSC transport's
// responsibility").
func (r *Registry) SendToBSC(bsc *trunk.BSC, msg []byte) {
	r.mu.RLock()
	c, ok := r.conns[bsc.Name]
	r.mu.RUnlock()
	if !ok {
		log.Errorf("transport: no live connection for bsc %q, dropping message", bsc.Name)
		return
	}

	select {
	case c.writeCh <- msg:
	default:
		log.Errorf("transport: write queue full for bsc %q, dropping message", bsc.Name)
	}
}

var _ nat.BSCSender = (*Registry)(nil)

func frameIPA(payload []byte) []byte {
	frame := make([]byte, ipaHeaderLen+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], uint16(len(payload)))
	frame[2] = ipaProtoMGCPOld
	copy(frame[ipaHeaderLen:], payload)
	return frame
}

func readIPAFrame(r io.Reader) ([]byte, error) {
	var header [ipaHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(header[0:2])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

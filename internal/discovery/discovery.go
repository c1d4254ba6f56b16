// Package discovery implements UDP broadcast node discovery: each node
// announces its identity every second on a shared port, gated by a
// symmetric cluster cookie, and the receiver reacts to new and expired
// peers (spec §6). Grounded on the membership-change coalescing idea in
// the retrieved hashicorp/serf event stream (serf-events.go in
// other_examples), re-expressed over a flat UDP beacon instead of a gossip
// protocol, per spec §1's explicit rejection of any consensus/membership
// library.
package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
)

// Membership receives node_up/node_down notifications.
type Membership interface {
	PeerUp(node string)
	PeerDown(node string)
}

type beacon struct {
	Node   string `json:"node"`
	Cookie string `json:"cookie"`
	RPC    string `json:"rpc"` // this node's RPC listen address
}

type peerInfo struct {
	rpcAddr  string
	lastSeen time.Time
}

// Discovery runs the beacon broadcaster and listener for one node.
type Discovery struct {
	node     string
	cookie   string
	rpcAddr  string
	port     int
	interval time.Duration
	stale    time.Duration
	members  Membership
	logger   *slog.Logger

	mu    sync.Mutex
	peers map[string]*peerInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Discovery instance. rpcAddr is advertised to peers so they
// know where to dial this node's RPC server.
func New(node, cookie, rpcAddr string, port int, interval, stale time.Duration, members Membership, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Discovery{
		node:     node,
		cookie:   cookie,
		rpcAddr:  rpcAddr,
		port:     port,
		interval: interval,
		stale:    stale,
		members:  members,
		logger:   logger.With(slog.String("component", constants.ComponentDiscovery)),
		peers:    make(map[string]*peerInfo),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins broadcasting and listening; it runs until Stop is called.
func (d *Discovery) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: d.port})
	if err != nil {
		return err
	}
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return err
	}
	go d.listen(conn)
	go d.broadcastLoop(conn)
	go d.reapLoop()
	return nil
}

// setBroadcast enables SO_BROADCAST on conn. Without it, writing to the
// limited broadcast address 255.255.255.255 fails with EACCES on Linux.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Stop tears down the discovery actor.
func (d *Discovery) Stop() { d.cancel() }

func (d *Discovery) broadcastLoop(conn *net.UDPConn) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: d.port}
	msg, _ := json.Marshal(beacon{Node: d.node, Cookie: d.cookie, RPC: d.rpcAddr})

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			conn.WriteToUDP(msg, dst)
		}
	}
}

func (d *Discovery) listen(conn *net.UDPConn) {
	go func() {
		<-d.ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		d.handleDatagram(buf[:n])
	}
}

// handleDatagram parses and applies one received beacon, rejecting foreign
// cluster cookies and echoes of this node's own broadcast. Split out from
// listen so the rejection/acceptance logic is testable without a socket.
func (d *Discovery) handleDatagram(data []byte) {
	var b beacon
	if err := json.Unmarshal(data, &b); err != nil {
		return
	}
	if b.Cookie != d.cookie {
		d.logger.Warn("rejected beacon with foreign cluster cookie", slog.String("node", b.Node))
		return
	}
	if b.Node == d.node {
		return
	}
	d.observe(b)
}

func (d *Discovery) observe(b beacon) {
	d.mu.Lock()
	_, known := d.peers[b.Node]
	d.peers[b.Node] = &peerInfo{rpcAddr: b.RPC, lastSeen: time.Now()}
	d.mu.Unlock()

	if !known {
		d.logger.Info("peer discovered", slog.String("node", b.Node), slog.String("rpc_addr", b.RPC))
		d.members.PeerUp(b.Node)
	}
}

func (d *Discovery) reapLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.reap()
		}
	}
}

func (d *Discovery) reap() {
	cutoff := time.Now().Add(-d.stale)
	var gone []string
	d.mu.Lock()
	for node, info := range d.peers {
		if info.lastSeen.Before(cutoff) {
			delete(d.peers, node)
			gone = append(gone, node)
		}
	}
	d.mu.Unlock()

	for _, node := range gone {
		d.logger.Warn("peer expired", slog.String("node", node))
		d.members.PeerDown(node)
	}
}

// Peers returns a snapshot of node -> rpc address for every live peer.
func (d *Discovery) Peers() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.peers))
	for node, info := range d.peers {
		out[node] = info.rpcAddr
	}
	return out
}

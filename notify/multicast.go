package notify

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/cppla/winsome/utils"
)

// RewardMessage is the advisory text sent after every reward pass.
const RewardMessage = "rewards computed, check your wallet"

// Broadcaster sends best-effort datagrams to the reward group.
type Broadcaster struct {
	mu   sync.Mutex
	conn *net.UDPConn
	addr string
}

// NewBroadcaster dials group:port. ttl and loopback only apply to multicast groups.
func NewBroadcaster(group string, port, ttl int, loopback bool) (*Broadcaster, error) {
	addr := net.JoinHostPort(group, strconv.Itoa(port))
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if raddr.IP.IsMulticast() {
		mc := ipv4.NewPacketConn(conn)
		if err := mc.SetMulticastTTL(ttl); err != nil {
			utils.Sugar.Warnf("multicast ttl not set group=%s err=%v", addr, err)
		}
		if err := mc.SetMulticastLoopback(loopback); err != nil {
			utils.Sugar.Warnf("multicast loopback not set group=%s err=%v", addr, err)
		}
	}
	return &Broadcaster{conn: conn, addr: addr}, nil
}

// Group is the destination address.
func (b *Broadcaster) Group() string { return b.addr }

// Broadcast sends msg once. Delivery is not acknowledged.
func (b *Broadcaster) Broadcast(msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return net.ErrClosed
	}
	if _, err := b.conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("broadcast to %s: %w", b.addr, err)
	}
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

package notify

import (
	"net"
	"strconv"
	"testing"
	"time"
)

func TestBroadcastReachesListener(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	b, err := NewBroadcaster("127.0.0.1", port, 1, true)
	if err != nil {
		t.Fatalf("broadcaster: %v", err)
	}
	defer b.Close()
	if b.Group() != "127.0.0.1:"+strconv.Itoa(port) {
		t.Fatalf("unexpected group %s", b.Group())
	}
	if err := b.Broadcast(RewardMessage); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != RewardMessage {
		t.Fatalf("unexpected datagram %q", buf[:n])
	}
}

func TestMulticastGroupSetup(t *testing.T) {
	b, err := NewBroadcaster("239.255.32.32", 44444, 1, true)
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer b.Close()
	// sending may fail without a multicast route; only closing semantics are asserted
	_ = b.Broadcast(RewardMessage)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Broadcast(RewardMessage); err == nil {
		t.Fatalf("broadcast after close should fail")
	}
}

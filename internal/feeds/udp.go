package feeds

import (
	"fmt"
	"net"
)

// ListenUDP opens a UDP listener as a feed transport. Senders must terminate
// each fix with a newline so the Mux's line scanner can split datagram
// payloads that arrive batched.
func ListenUDP(addr string) (Porter, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", addr, err)
	}
	return conn, nil
}

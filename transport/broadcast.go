package transport

import (
	"context"
	"net"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ListenBroadcast opens a UDP socket on addr that is allowed to send to
// broadcast addresses. network is "udp" or "udp4".
func ListenBroadcast(ctx context.Context, network, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setBroadcast(fd)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ListenBroadcast",
			"network":  network,
			"address":  addr,
			"error":    err.Error(),
		}).Warn("Failed to open broadcast socket")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "ListenBroadcast",
		"local_addr": conn.LocalAddr().String(),
	}).Debug("Broadcast socket opened")
	return conn, nil
}

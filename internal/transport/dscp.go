package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// setDSCP sets IP_TOS on conn's underlying fd, per spec.md section 6's
// PQ_ENCRYPTED_DSCP option. Grounded on the teacher's raw-fd-via-
// SyscallConn pattern for socket options it cannot reach through the
// standard net package (infrastructure/PAL/linux/syscall/syscall.go).
func setDSCP(conn *net.UDPConn, dscp int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("transport: obtaining raw conn: %w", err)
	}
	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, dscp<<2)
	})
	if err != nil {
		return fmt.Errorf("transport: raw conn control: %w", err)
	}
	return sockErr
}

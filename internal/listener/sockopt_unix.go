//go:build unix

package listener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets SO_RCVBUF before bind when requested. SO_REUSEADDR stays
// unset so a second collector on the same port fails to bind.
func control(socketBuffer int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if socketBuffer <= 0 {
			return nil
		}
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBuffer)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

//go:build windows

package listener

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// control sets SO_RCVBUF before bind. SO_REUSEADDR is left unset on
// Windows, where it allows another process to take over the port.
func control(socketBuffer int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if socketBuffer <= 0 {
			return nil
		}
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, socketBuffer)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

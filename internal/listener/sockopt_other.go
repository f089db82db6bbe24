//go:build !unix && !windows

package listener

import "syscall"

func control(int) func(network, address string, c syscall.RawConn) error {
	return nil
}

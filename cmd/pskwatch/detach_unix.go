//go:build !windows

package main

import "syscall"

// detachAttr starts the daemon in its own session so it outlives the shell.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

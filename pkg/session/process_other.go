//go:build !unix

package session

import "os"

// processAlive relies on FindProcess, which opens a handle to a live process on Windows
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

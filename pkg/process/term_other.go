//go:build !linux && !darwin

package process

import "errors"

// IsTerminal reports whether fd refers to a terminal.
func IsTerminal(fd int) bool {
	return false
}

func setRawMode(fd int) (func(), error) {
	return nil, errors.New("raw mode not supported on this platform")
}

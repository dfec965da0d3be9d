package main

import (
	"os"

	"golang.org/x/term"
)

// KeyboardHost reads raw stdin for the machine's keyboard device. Raw
// mode disables OS-level echo and line buffering; the IN instruction
// echoes consumed input itself.
type KeyboardHost struct {
	fd       int
	oldState *term.State
}

// OpenKeyboard puts stdin into raw mode. Call Close to restore it.
func OpenKeyboard() (host *KeyboardHost, err error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	host = &KeyboardHost{fd: fd, oldState: oldState}
	return
}

// ReadLine collects keystrokes until Enter and returns them. Raw mode
// sends CR for Enter; Backspace arrives as DEL and removes the last
// pending byte.
func (host *KeyboardHost) ReadLine() (line string, err error) {
	var pending []byte
	var one [1]byte
	for {
		_, err = os.Stdin.Read(one[:])
		if err != nil {
			return
		}
		switch one[0] {
		case '\r', '\n':
			line = string(pending)
			return
		case 0x7f, 0x08:
			if len(pending) > 0 {
				pending = pending[:len(pending)-1]
			}
		default:
			pending = append(pending, one[0])
		}
	}
}

// Close restores the terminal state.
func (host *KeyboardHost) Close() (err error) {
	if host.oldState != nil {
		err = term.Restore(host.fd, host.oldState)
		host.oldState = nil
	}
	return
}

// Package front defines the adapter surface a user interface
// implements to observe and steer the machine. The engine pushes
// register updates, terminal text, and button state through it; a
// front end feeds keyboard input back through the driver.
package front

import (
	"io"
)

// Frontend is the engine's view of a user interface.
type Frontend interface {
	// UpdateRegister reports a register's new contents as a bit string.
	UpdateRegister(name string, bits string)
	// AppendTerminal appends text to the terminal display.
	AppendTerminal(text string)
	// ToggleButton enables or disables a named button.
	ToggleButton(id string, enabled bool)
	// DisableButtons disables every run button at a halt.
	DisableButtons()
}

// Headless discards every update. It keeps the engine fully testable
// without a user interface.
type Headless struct{}

var _ Frontend = Headless{}

func (Headless) UpdateRegister(string, string) {}
func (Headless) AppendTerminal(string)         {}
func (Headless) ToggleButton(string, bool)     {}
func (Headless) DisableButtons()               {}

// Console renders terminal output to a writer and ignores the rest.
type Console struct {
	Output io.Writer
}

var _ Frontend = (*Console)(nil)

func (con *Console) UpdateRegister(string, string) {}

func (con *Console) AppendTerminal(text string) {
	io.WriteString(con.Output, text)
}

func (con *Console) ToggleButton(string, bool) {}
func (con *Console) DisableButtons()           {}

package front

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadlessIsANoOp(t *testing.T) {
	var fe Frontend = Headless{}

	fe.UpdateRegister("PC", "000000000000")
	fe.AppendTerminal("ignored")
	fe.ToggleButton("load", true)
	fe.DisableButtons()
}

func TestConsoleWritesTerminal(t *testing.T) {
	assert := assert.New(t)

	out := &strings.Builder{}
	var fe Frontend = &Console{Output: out}

	fe.AppendTerminal("hello")
	fe.AppendTerminal(" world")
	fe.UpdateRegister("R0", "000000000000000001")

	assert.Equal("hello world", out.String())
}

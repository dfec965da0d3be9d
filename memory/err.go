package memory

import (
	"github.com/mhjnchetan/vn18/translate"
)

var f = translate.From

// ErrAddressRange indicates a memory access outside [0, Size).
type ErrAddressRange int

func (e ErrAddressRange) Error() string {
	return f("address %v out of range", int(e))
}

func (e ErrAddressRange) Is(err error) (ok bool) {
	_, ok = err.(ErrAddressRange)
	return
}

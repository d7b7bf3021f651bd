//go:build !govips || !cgo

package processor

import "fmt"

func Startup() error {
	return nil
}

func Shutdown() {}

func newVips(Options) (Processor, error) {
	return nil, fmt.Errorf("%w: vips requires the govips build tag and cgo", ErrUnknownEngine)
}

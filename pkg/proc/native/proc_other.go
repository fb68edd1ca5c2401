//go:build !linux
// +build !linux

package native

import (
	"errors"

	"github.com/v8scope/v8scope/pkg/proc"
)

// ErrNativeBackendDisabled is returned on systems without process_vm_readv.
var ErrNativeBackendDisabled = errors.New("live process inspection is only supported on linux")

// Open returns ErrNativeBackendDisabled.
func Open(pid int) (proc.Process, error) {
	return nil, ErrNativeBackendDisabled
}

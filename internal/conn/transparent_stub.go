//go:build !linux

package conn

import "errors"

const TransparentSupported = false

func setTransparent(_ uintptr) error {
	return errors.New("IP_TRANSPARENT is only supported on linux")
}

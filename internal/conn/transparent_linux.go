//go:build linux

package conn

import "golang.org/x/sys/unix"

// TransparentSupported is true where IP_TRANSPARENT exists.
const TransparentSupported = true

// setTransparent enables IP_TRANSPARENT so a literal address that isn't
// configured locally can still be bound. It needs CAP_NET_ADMIN.
func setTransparent(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
}

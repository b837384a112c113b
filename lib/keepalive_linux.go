//go:build linux

package lib

import "golang.org/x/sys/unix"

// SetTcpKeepalive sets how many unanswered keepalive probes drop the
// connection and how many seconds separate them
func SetTcpKeepalive(fd, probes, interval int) error {
	if probes > 0 {
		err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, probes)
		if err != nil {
			return err
		}
	}
	if interval > 0 {
		return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, interval)
	}
	return nil
}

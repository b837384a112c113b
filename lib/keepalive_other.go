//go:build !linux

package lib

// SetTcpKeepalive is only supported on linux
func SetTcpKeepalive(fd, probes, interval int) error {
	return nil
}

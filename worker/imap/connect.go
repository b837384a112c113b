package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/auth"
	"git.sr.ht/~rjarry/mlsync/lib/log"
)

// connect opens a connection to the server and logs in. The returned
// client is in the authenticated state.
func (w *IMAPWorker) connect() (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout:   w.config.connection_timeout,
		KeepAlive: -1,
	}
	if w.config.keepalive_period > 0 {
		dialer.KeepAlive = w.config.keepalive_period
		dialer.Control = w.keepaliveControl
	}
	conn, err := dialer.Dial("tcp", w.config.addr)
	if err != nil {
		return nil, err
	}
	if w.config.connection_timeout > 0 {
		// the handshake and login must not hang either
		if err := conn.SetDeadline(time.Now().Add(w.config.connection_timeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	c, err := w.handshake(conn)
	if err != nil {
		return nil, err
	}
	c.ErrorLog = log.ErrorLogger()
	if err := w.authenticate(c); err != nil {
		c.Terminate()
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Terminate()
		return nil, err
	}
	return c, nil
}

// handshake wraps conn into TLS as required by the scheme
func (w *IMAPWorker) handshake(conn net.Conn) (*client.Client, error) {
	host, _, _ := net.SplitHostPort(w.config.addr)
	tlsConfig := &tls.Config{ServerName: host}

	if w.config.scheme == "imaps" {
		tlsConn := tls.Client(conn, tlsConfig)
		c, err := client.New(tlsConn)
		if err != nil {
			tlsConn.Close()
			return nil, err
		}
		return c, nil
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !w.config.insecure {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Terminate()
			return nil, errors.Wrap(err, "starttls")
		}
	}
	return c, nil
}

func (w *IMAPWorker) authenticate(c *client.Client) error {
	user := w.config.url.User
	if user == nil {
		return nil
	}
	if w.config.mech == "plain" {
		password, _ := user.Password()
		return c.Login(user.Username(), password)
	}
	saslClient, err := auth.NewSaslClient(w.config.mech, w.config.url, w.config.name)
	if err != nil {
		return err
	}
	if saslClient == nil {
		return nil
	}
	mech := strings.ToUpper(w.config.mech)
	if ok, err := c.SupportAuth(mech); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%s authentication not supported by the server", mech)
	}
	return c.Authenticate(saslClient)
}

// keepaliveControl sets the probe count and interval on the socket before
// it connects
func (w *IMAPWorker) keepaliveControl(network, address string, raw syscall.RawConn) error {
	return raw.Control(func(fd uintptr) {
		err := lib.SetTcpKeepalive(int(fd),
			w.config.keepalive_probes, w.config.keepalive_interval)
		if err != nil {
			w.log.Warnf("tcp keepalive: %v", err)
		}
	})
}

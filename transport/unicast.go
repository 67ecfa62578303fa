// Package transport implements the peer messaging substrate: best-effort
// unicast send with a bounded timeout, the process-alive liveness probe
// built on it, and best-effort broadcast. Grounded on the dial/resolve
// shape of network/connection.go (connectionDial.start resolving then
// net.DialTCP), simplified to a single one-shot connect+write+close
// rather than a persistent, retried, TLS-handshaking connection.
package transport

import (
	"net"
	"time"

	"paxfabric.io/server"
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
)

// Send resolves endpoint, opens a TCP connection, writes e, and closes the
// socket, all bounded by server.UnicastTimeout. It returns the number of
// bytes written. Any failure — resolution, connect, or write — is reported
// as common.ErrAddressUnavailable.
func Send(endpoint common.Endpoint, e codec.Event) (int, error) {
	raw, err := codec.Encode(e)
	if err != nil {
		return 0, err
	}
	return SendBytes(endpoint, raw)
}

// SendBytes is the byte-level primitive Send and IsAlive both use; IsAlive
// calls it with an empty buffer.
func SendBytes(endpoint common.Endpoint, raw []byte) (int, error) {
	conn, err := net.DialTimeout("tcp", string(endpoint), server.UnicastTimeout)
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(server.UnicastTimeout)); err != nil {
		return 0, wrapUnavailable(err)
	}

	total := 0
	for total < len(raw) {
		n, err := conn.Write(raw[total:])
		total += n
		if err != nil {
			return total, wrapUnavailable(err)
		}
	}
	return total, nil
}

// IsAlive reports whether endpoint can accept a TCP connection within
// server.UnicastTimeout — the system's only liveness signal.
func IsAlive(endpoint common.Endpoint) bool {
	_, err := SendBytes(endpoint, nil)
	return err == nil
}

func wrapUnavailable(err error) error {
	return &unavailableError{cause: err}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return common.ErrAddressUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() error {
	return common.ErrAddressUnavailable
}

func (e *unavailableError) Cause() error {
	return e.cause
}

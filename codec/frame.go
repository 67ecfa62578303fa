package codec

import (
	"io"

	"paxfabric.io/server"
)

// ReadFramed reads up to server.MaxEventBytes from r and decodes whatever
// came back as a single Event. There is no length prefix: the read's
// returned byte count is the message length. Connection close on the
// first read is treated like zero bytes read.
func ReadFramed(r io.Reader) (Event, error) {
	buf := make([]byte, server.MaxEventBytes)
	n, err := r.Read(buf)
	if err != nil && n == 0 {
		return Decode(buf[:0])
	}
	return Decode(buf[:n])
}

// WriteFramed encodes e and writes it, looping to guard against a short
// write.
func WriteFramed(w io.Writer, e Event) (int, error) {
	raw, err := Encode(e)
	if err != nil {
		return 0, err
	}
	total := 0
	for total < len(raw) {
		n, err := w.Write(raw[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

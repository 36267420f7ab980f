package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	socksVersion        = 0x05
	socksAuthVersion    = 0x01
	socksMethodNoAuth   = 0x00
	socksMethodUserPass = 0x02
	socksMethodNone     = 0xff
	socksCmdConnect     = 0x01
	socksAtypIPv4       = 0x01
	socksAtypDomain     = 0x03
	socksAtypIPv6       = 0x04
)

var (
	// ErrAuthMethodsRejected means the upstream answered the greeting with 0xFF.
	ErrAuthMethodsRejected = errors.New("SOCKS5 server rejected all auth methods")
	// ErrAuthFailed means RFC 1929 sub-negotiation returned a non-zero status.
	ErrAuthFailed = errors.New("SOCKS5 authentication failed")
	// ErrFieldTooLong is returned for hostnames or credentials over 255 bytes.
	ErrFieldTooLong = errors.New("SOCKS5 field exceeds 255 bytes")
)

var socksReplyMessages = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// ReplyError carries a non-zero SOCKS5 CONNECT reply code.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	msg, ok := socksReplyMessages[e.Code]
	if !ok {
		msg = "unknown error"
	}
	return fmt.Sprintf("SOCKS5 connect failed: %s (0x%02x)", msg, e.Code)
}

// socksGreeting offers no-auth and username/password.
func socksGreeting() []byte {
	return []byte{socksVersion, 2, socksMethodNoAuth, socksMethodUserPass}
}

// parseMethodSelection validates the 2-byte method selection reply and returns the chosen method.
func parseMethodSelection(reply [2]byte) (byte, error) {
	if reply[0] != socksVersion {
		return 0, fmt.Errorf("unexpected SOCKS version %d in method selection", reply[0])
	}
	switch reply[1] {
	case socksMethodNoAuth, socksMethodUserPass:
		return reply[1], nil
	case socksMethodNone:
		return 0, ErrAuthMethodsRejected
	default:
		return 0, fmt.Errorf("SOCKS5 server selected unsupported method 0x%02x", reply[1])
	}
}

func encodeUserPassAuth(username, password string) ([]byte, error) {
	if len(username) > 255 || len(password) > 255 {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, 0, 3+len(username)+len(password))
	buf = append(buf, socksAuthVersion, byte(len(username)))
	buf = append(buf, username...)
	buf = append(buf, byte(len(password)))
	buf = append(buf, password...)
	return buf, nil
}

func parseAuthReply(reply [2]byte) error {
	if reply[1] != 0x00 {
		return fmt.Errorf("%w: status 0x%02x", ErrAuthFailed, reply[1])
	}
	return nil
}

// encodeConnectRequest builds a CONNECT request with a DOMAINNAME address so DNS resolves upstream.
func encodeConnectRequest(host string, port uint16) ([]byte, error) {
	if len(host) > 255 {
		return nil, ErrFieldTooLong
	}
	if host == "" {
		return nil, errMissingHostname
	}
	buf := make([]byte, 0, 7+len(host))
	buf = append(buf, socksVersion, socksCmdConnect, 0x00, socksAtypDomain, byte(len(host)))
	buf = append(buf, host...)
	buf = binary.BigEndian.AppendUint16(buf, port)
	return buf, nil
}

// readConnectReply consumes the CONNECT reply including the bound address.
func readConnectReply(r io.Reader) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read connect reply: %w", err)
	}
	if header[0] != socksVersion {
		return fmt.Errorf("unexpected SOCKS version %d in connect reply", header[0])
	}
	if header[1] != 0x00 {
		return &ReplyError{Code: header[1]}
	}

	var skip int
	switch header[3] {
	case socksAtypIPv4:
		skip = 4 + 2
	case socksAtypIPv6:
		skip = 16 + 2
	case socksAtypDomain:
		var l [1]byte
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return fmt.Errorf("read bound address length: %w", err)
		}
		skip = int(l[0]) + 2
	default:
		return fmt.Errorf("unsupported bound address type 0x%02x", header[3])
	}
	if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
		return fmt.Errorf("read bound address: %w", err)
	}
	return nil
}

// socksHandshake runs greeting, optional auth, and CONNECT over rw.
func socksHandshake(rw io.ReadWriter, username, password, host string, port uint16) error {
	if len(host) > 255 || len(username) > 255 || len(password) > 255 {
		return ErrFieldTooLong
	}
	if _, err := rw.Write(socksGreeting()); err != nil {
		return fmt.Errorf("socks5 greeting: %w", err)
	}
	var sel [2]byte
	if _, err := io.ReadFull(rw, sel[:]); err != nil {
		return fmt.Errorf("socks5 method selection: %w", err)
	}
	method, err := parseMethodSelection(sel)
	if err != nil {
		return err
	}

	if method == socksMethodUserPass {
		auth, err := encodeUserPassAuth(username, password)
		if err != nil {
			return err
		}
		if _, err := rw.Write(auth); err != nil {
			return fmt.Errorf("socks5 auth: %w", err)
		}
		var reply [2]byte
		if _, err := io.ReadFull(rw, reply[:]); err != nil {
			return fmt.Errorf("socks5 auth reply: %w", err)
		}
		if err := parseAuthReply(reply); err != nil {
			return err
		}
	}

	req, err := encodeConnectRequest(host, port)
	if err != nil {
		return err
	}
	if _, err := rw.Write(req); err != nil {
		return fmt.Errorf("socks5 connect: %w", err)
	}
	return readConnectReply(rw)
}

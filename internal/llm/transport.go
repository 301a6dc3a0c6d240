package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Transport failure kinds, used as log fields and metric labels.
const (
	TransportTimeout    = "timeout"
	TransportDNS        = "dns"
	TransportConnection = "connection"
	TransportOther      = "other"
)

// classifyTransportError buckets a failed http.Client.Do or body read.
func classifyTransportError(err error) string {
	if err == nil {
		return TransportOther
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "read", "write":
			return TransportConnection
		}
	}

	// Wrapped errors sometimes only keep the message.
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected eof",
	} {
		if strings.Contains(errStr, pattern) {
			return TransportConnection
		}
	}
	if strings.Contains(errStr, "no such host") {
		return TransportDNS
	}

	return TransportOther
}

package parse

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address is a host and port pair as listed by the server directory.
type Address struct {
	Host string
	Port int
}

// String formats the address as host:port, bracketing IPv6 hosts.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// WithHost returns a copy of the address with the host replaced. An empty host leaves it unchanged.
func (a Address) WithHost(host string) Address {
	if host == "" {
		return a
	}
	return Address{Host: host, Port: a.Port}
}

// ParseAddress extracts host and port from a raw "host:port" string.
func ParseAddress(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("unable to parse address %q: %w", raw, err)
	}
	if host == "" {
		return Address{}, fmt.Errorf("missing host in address %q", raw)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("invalid port in address %q", raw)
	}

	return Address{Host: host, Port: port}, nil
}

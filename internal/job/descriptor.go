// Package job turns annotated controller symbols into immutable polling job
// descriptors. It is the only package aware of the raw annotation keys.
package job

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Annotation keys read from controller symbols
const (
	AttrOID        = "snmp_oid"
	AttrAddress    = "snmp_address"
	AttrCommunity  = "snmp_community"
	AttrIntervalMS = "snmp_interval_ms"
)

// Defaults applied when optional annotations are absent or unusable
const (
	DefaultCommunity = "public"
	DefaultInterval  = 5000 * time.Millisecond
	DefaultSNMPPort  = 161
)

// Descriptor describes one controller symbol <- SNMP OID binding.
// A Descriptor is a value and is never modified after Discover returns it;
// new parameters mean a new Descriptor.
type Descriptor struct {
	Target    string        `json:"target" validate:"required"`
	OID       string        `json:"oid" validate:"required"`
	Address   string        `json:"address" validate:"required,snmp_address"`
	Community string        `json:"community" validate:"required"`
	Interval  time.Duration `json:"interval" validate:"gt=0"`
}

// ID is the job identity used in logs and metrics
func (d Descriptor) ID() string {
	return d.Target
}

// String summarises the descriptor for log output
func (d Descriptor) String() string {
	return fmt.Sprintf("%s <- %s %s every %s", d.Target, d.Address, d.OID, d.Interval)
}

// Host returns the agent host part of Address
func (d Descriptor) Host() string {
	host, _, err := splitAddress(d.Address)
	if err != nil {
		return d.Address
	}
	return host
}

// Port returns the agent UDP port, DefaultSNMPPort when Address has none
func (d Descriptor) Port() uint16 {
	_, port, err := splitAddress(d.Address)
	if err != nil {
		return DefaultSNMPPort
	}
	return port
}

// FromAttributes builds a Descriptor from a symbol name and its annotations.
// ok is false when a required annotation is missing; such symbols are not
// polling jobs and are skipped without error. A non-nil error means the
// annotations are present but invalid.
func FromAttributes(name string, attrs map[string]string) (d Descriptor, ok bool, err error) {
	oid := strings.TrimSpace(attrs[AttrOID])
	address := strings.TrimSpace(attrs[AttrAddress])
	if oid == "" || address == "" {
		return Descriptor{}, false, nil
	}

	d = Descriptor{
		Target:    name,
		OID:       oid,
		Address:   address,
		Community: DefaultCommunity,
		Interval:  parseInterval(attrs[AttrIntervalMS]),
	}
	if c := strings.TrimSpace(attrs[AttrCommunity]); c != "" {
		d.Community = c
	}

	if err := Validate(d); err != nil {
		return Descriptor{}, true, err
	}
	return d, true, nil
}

// parseInterval reads a millisecond count, DefaultInterval when absent,
// unparsable or not positive
func parseInterval(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultInterval
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return DefaultInterval
	}
	return time.Duration(ms) * time.Millisecond
}

// splitAddress splits "host" or "host:port" (IPv6 hosts in brackets when a
// port is present)
func splitAddress(address string) (string, uint16, error) {
	if address == "" {
		return "", 0, fmt.Errorf("empty address")
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		// no port; a bare IPv6 literal also lands here
		if strings.Contains(err.Error(), "missing port") || strings.Count(address, ":") > 1 {
			return strings.Trim(address, "[]"), DefaultSNMPPort, nil
		}
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", address)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint16(port), nil
}

package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PortMap remaps outbound destination ports. A nil *PortMap
// leaves every port unchanged.
type PortMap struct {
	exact       map[uint16]uint16
	hasWildcard bool
	wildcard    uint16
}

// ErrInvalidPortMapping indicates that a port mapping is malformed.
var ErrInvalidPortMapping = errors.New("invalid port mapping")

// ParsePortMappings parses a comma separated list of src:dst pairs
// where src may be "*" to map every port without an exact match. The
// empty string yields a nil *PortMap.
func ParsePortMappings(s string) (*PortMap, error) {
	if s == "" {
		return nil, nil
	}
	pm := &PortMap{exact: map[uint16]uint16{}}
	for _, pair := range strings.Split(s, ",") {
		src, dst, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			return nil, errors.Wrapf(ErrInvalidPortMapping, "%q", pair)
		}
		dport, err := parsePort(dst)
		if err != nil {
			return nil, errors.Wrapf(err, "%q", pair)
		}
		if src == "*" {
			pm.hasWildcard = true
			pm.wildcard = dport
			continue
		}
		sport, err := parsePort(src)
		if err != nil {
			return nil, errors.Wrapf(err, "%q", pair)
		}
		pm.exact[sport] = dport
	}
	return pm, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, ErrInvalidPortMapping
	}
	return uint16(v), nil
}

// Map returns the port to use for the given destination port.
func (pm *PortMap) Map(port uint16) uint16 {
	if pm == nil {
		return port
	}
	if mapped, found := pm.exact[port]; found {
		return mapped
	}
	if pm.hasWildcard {
		return pm.wildcard
	}
	return port
}

package websocket

import (
	"net/url"
	"strings"
)

// HostOriginValidator accepts http(s) origins whose host:port is listed.
type HostOriginValidator struct {
	hosts map[string]bool
}

// NewHostOriginValidator allows the given host:port pairs.
func NewHostOriginValidator(hosts ...string) *HostOriginValidator {
	v := &HostOriginValidator{hosts: make(map[string]bool, len(hosts))}
	for _, host := range hosts {
		v.hosts[strings.ToLower(host)] = true
	}
	return v
}

// IsAllowedOrigin implements OriginValidator.
func (v *HostOriginValidator) IsAllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return v.hosts[strings.ToLower(u.Host)]
}

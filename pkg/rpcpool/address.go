package rpcpool

import "fmt"

// Address identifies a remote peer. It is immutable and comparable, so it
// can be used directly as a map key in the top-level address table.
type Address struct {
	Scheme     string // "dns", "unix", ""
	Host       string
	Port       int
	PathPrefix string // optional routing prefix, not used for dialing
}

// String renders the address the way it appears in synthesized status
// messages, matching the source's `{}`-formatted URI.
func (a Address) String() string {
	host := a.Host
	if a.Port != 0 {
		host = fmt.Sprintf("%s:%d", a.Host, a.Port)
	}
	if a.Scheme == "" {
		return host
	}
	return fmt.Sprintf("%s://%s", a.Scheme, host)
}

// Target returns the dial target grpc.NewClient expects.
func (a Address) Target() string {
	switch a.Scheme {
	case "unix":
		return "unix:" + a.Host
	default:
		if a.Port != 0 {
			return fmt.Sprintf("%s:%d", a.Host, a.Port)
		}
		return a.Host
	}
}

// Package egress assigns outbound proxy routes to requests and rotates them
// on failure or block signals.
package egress

import (
	"fmt"
	"net/url"
	"strings"
)

// Route is one outbound network path a request can be sent through.
type Route struct {
	Address string
	Scheme  string
}

// URL renders the route as a proxy URL usable by an HTTP transport.
func (r Route) URL() *url.URL {
	return &url.URL{Scheme: r.Scheme, Host: r.Address}
}

func (r Route) String() string {
	return r.Scheme + "://" + r.Address
}

// ParseRoutes converts configured proxy strings into routes. Accepted schemes
// are http, socks4, and socks5.
func ParseRoutes(raw []string) ([]Route, error) {
	routes := make([]Route, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		u, err := url.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("parse egress route %q: %w", entry, err)
		}
		switch u.Scheme {
		case "http", "socks4", "socks5":
		default:
			return nil, fmt.Errorf("egress route %q: unsupported scheme %q", entry, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("egress route %q: missing host", entry)
		}
		routes = append(routes, Route{Address: u.Host, Scheme: u.Scheme})
	}
	return routes, nil
}

package route

import "fmt"

// Table is an ordered, validated set of routes. It is immutable once built.
type Table struct {
	routes []Route
}

// NewTable validates routes and returns them as a Table. An empty slice is
// accepted; refusing to serve nothing is the caller's decision.
func NewTable(routes []Route) (Table, error) {
	for i, r := range routes {
		if err := r.Validate(); err != nil {
			return Table{}, fmt.Errorf("route %d (%s): %w", i+1, r, err)
		}
	}
	return Table{routes: append([]Route(nil), routes...)}, nil
}

func (t Table) Len() int { return len(t.routes) }

// Routes returns a copy of the routes in table order.
func (t Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// PortGroup is the set of routes sharing one listening port, in table order.
type PortGroup struct {
	Port   uint16
	Routes []Route
}

// GroupByPort groups the table by SourcePort. Groups are ordered by the first
// appearance of their port.
func GroupByPort(t Table) []PortGroup {
	var groups []PortGroup
	index := make(map[uint16]int)
	for _, r := range t.routes {
		i, ok := index[r.SourcePort]
		if !ok {
			i = len(groups)
			index[r.SourcePort] = i
			groups = append(groups, PortGroup{Port: r.SourcePort})
		}
		groups[i].Routes = append(groups[i].Routes, r)
	}
	return groups
}

// HasWildcard reports whether any route in g is a wildcard route.
func (g PortGroup) HasWildcard() bool {
	for _, r := range g.Routes {
		if r.IsWildcard() {
			return true
		}
	}
	return false
}

// SourceIPs returns the distinct literal source addresses of g, in order.
func (g PortGroup) SourceIPs() []string {
	var ips []string
	seen := make(map[string]bool)
	for _, r := range g.Routes {
		if r.IsWildcard() || seen[r.SourceIP] {
			continue
		}
		seen[r.SourceIP] = true
		ips = append(ips, r.SourceIP)
	}
	return ips
}

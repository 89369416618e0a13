// Package route holds the forwarding table: validated routes, their grouping
// by listening port, and selection of the route that applies to an accepted
// connection.
package route

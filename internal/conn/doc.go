// Package conn creates the listening sockets for port groups.
//
// A group is bound to the wildcard address when it contains a wildcard route
// or routes for more than one literal address; otherwise it is bound to the
// literal address of its first route. A failed literal bind falls back to the
// wildcard on the same port.
package conn

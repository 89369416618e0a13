// Package proxy is the route multiplexing and relay engine.
//
// A Supervisor binds one listener per distinct source port, picks the route
// for every accepted connection by the address the client connected to,
// connects to the route's destination and relays bytes in both directions
// until either side closes or the supervisor stops.
package proxy

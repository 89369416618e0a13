// Package dialer opens destination connections.
//
// A Dialer connects either directly or through an upstream proxy (HTTP
// CONNECT or SOCKS5). A Resolver sits in front of it: it turns a route's
// destination name into one IPv4 address and dials that address.
package dialer

// Package frr implements the routing daemon control channel of §4.L: a
// local socket client the configuration processor drives exclusively
// during apply. It is not on the data path and nothing here reads or
// writes a packet.
package frr

/*
Package gwerr defines the error kinds that cross the configuration
boundary: the taxonomy pkg/gwconfig's Apply and query operations return
to a caller, as opposed to per-packet drop reasons (those live on the
packet itself, in pkg/gwpacket) or netlink-level errors (logged and
retried inside pkg/reconciler, never surfaced directly).
*/
package gwerr

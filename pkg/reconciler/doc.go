// Package reconciler converges the kernel's netlink interface state toward
// a required RIB describing the bridges, VRFs and VXLAN tunnel endpoints a
// configuration generation needs. It never mutates state directly from a
// diff; Plan separates "what should change" from "how to change it" so the
// diff logic can be tested without a kernel underneath it.
package reconciler

// Package relay carries form submissions over loopback UDP.
// The Sender side runs inside the HTTP handlers; the Listener binds the UDP socket,
// decodes each datagram and appends it to the store, one datagram at a time.
package relay

// Package server implements the site HTTP server and the Prometheus metrics endpoint.
// The site server answers GET with the index, message, error and static documents
// from a base directory and turns every POST into a relayed UDP datagram.
package server

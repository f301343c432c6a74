// Package internaldefs exposes stable metric name and bucket definitions
// shared by exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and OTel
// exporters render identical names and boundaries. Changing a definition
// here changes every exporter at once.
package internaldefs

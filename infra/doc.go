// Package infra contains technical adapters: the MQTT publisher and location
// subscriber, persistence backends, and metrics exporters. These packages
// depend only on interfaces defined in the core packages.
package infra

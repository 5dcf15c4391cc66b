// Package release drives device repositories through the ESR release state
// machine and coordinates the fleet-wide run.
package release

// Package report renders the outcome of a fleet run.
//
// A run is converted once into a Document, which is then printed as a console
// table, written as a JSON, YAML or TOML report file, or exported as
// Prometheus textfile metrics alongside counters of the git commands issued.
package report

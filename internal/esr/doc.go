// Package esr defines the shared vocabulary of Extended Support Release
// promotion: validated ESR and OS version values, the branch and tag names
// derived from them, and the typed error taxonomy used by every component that
// participates in a release run.
package esr

// Package cli builds the esrctl command tree. It loads configuration and
// credentials, creates the logger and wires the release orchestrator, fleet
// catalog and report writers behind the release and discover commands.
package cli

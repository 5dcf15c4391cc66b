// Package execshell runs external tools such as git on behalf of the release
// workflow.
//
// ShellExecutor logs every command with a human-readable description, masks
// credentials before they reach logs or errors, and turns non-zero exit codes
// into CommandFailedError so callers can branch on the exit status.
package execshell

// Package flags provides pflag values shared by esrctl commands: yes/no
// toggles and closed choice lists.
package flags

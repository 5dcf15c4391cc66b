// Package ui turns command lifecycle events into console progress.
//
// The executor already records every command at debug level; the progress
// logger surfaces the steps that change a repository so an operator can
// follow a fleet run without enabling debug logs.
package ui

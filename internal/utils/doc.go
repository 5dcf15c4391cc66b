// Package utils holds the process plumbing shared by esrctl commands: the
// viper-backed ConfigurationLoader, the zap LoggerFactory and run-scoped
// context values.
package utils

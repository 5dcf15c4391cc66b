// Package credentials resolves the GitHub, cloud and deploy tokens from
// configuration references and the process environment.
package credentials

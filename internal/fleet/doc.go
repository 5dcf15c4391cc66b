// Package fleet talks to the services around a release run: GitHub
// repository discovery, the cloud device-type catalog, the deploy job server,
// and the per-repository device-type generator.
package fleet

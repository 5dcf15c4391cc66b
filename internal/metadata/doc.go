// Package metadata edits the release metadata files of device and meta-layer
// repositories: the esr record in repo.yml, the VERSION file and CHANGELOG.md.
//
// All edits go through an afero filesystem and refuse to run when a version
// value or the pre-image of a file does not have the expected shape.
package metadata

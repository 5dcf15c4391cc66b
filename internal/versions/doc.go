// Package versions resolves the highest release tag of a remote for a version
// prefix, ordering tags by numeric components rather than text.
package versions

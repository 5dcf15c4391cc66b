// Package repostate drives git operations on one device repository working copy
// and its nested meta-layer checkout.
package repostate

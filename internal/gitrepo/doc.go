// Package gitrepo parses git remotes and lists their references.
//
// Remote listing is available through the git CLI (ShellReferenceLister) or
// in-process through go-git (NativeReferenceLister); both return go-git
// plumbing references filtered by namespace and glob.
package gitrepo

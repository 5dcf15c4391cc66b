package gitrepo

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	referenceLineSeparatorConstant     = "\t"
	malformedReferenceTemplateConstant = "malformed ls-remote line %q"
)

// ReferenceKind selects which namespace of remote references to list.
type ReferenceKind int

// Supported reference kinds.
const (
	ReferenceKindTags ReferenceKind = iota
	ReferenceKindHeads
)

// ReferenceQuery narrows a remote listing to one namespace and an optional glob.
type ReferenceQuery struct {
	Kind    ReferenceKind
	Pattern string
}

// ParseLSRemoteOutput converts `git ls-remote` output into references. Peeled
// tag entries (suffixed with ^{}) are skipped.
func ParseLSRemoteOutput(output string) ([]*plumbing.Reference, error) {
	references := []*plumbing.Reference{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		fields := strings.SplitN(line, referenceLineSeparatorConstant, 2)
		if len(fields) != 2 {
			fields = strings.Fields(line)
		}
		if len(fields) != 2 || !plumbing.IsHash(fields[0]) {
			return nil, fmt.Errorf(malformedReferenceTemplateConstant, line)
		}
		referenceName := plumbing.ReferenceName(strings.TrimSpace(fields[1]))
		if strings.HasSuffix(referenceName.String(), peeledSuffixConstant) {
			continue
		}
		references = append(references, plumbing.NewHashReference(referenceName, plumbing.NewHash(fields[0])))
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return references, nil
}

// ShortNames returns the short names of references matching kind.
func ShortNames(references []*plumbing.Reference, kind ReferenceKind) []string {
	names := make([]string, 0, len(references))
	for _, reference := range references {
		if !matchesKind(reference.Name(), kind) {
			continue
		}
		names = append(names, reference.Name().Short())
	}
	return names
}

func matchesKind(referenceName plumbing.ReferenceName, kind ReferenceKind) bool {
	switch kind {
	case ReferenceKindTags:
		return referenceName.IsTag()
	case ReferenceKindHeads:
		return referenceName.IsBranch()
	default:
		return false
	}
}

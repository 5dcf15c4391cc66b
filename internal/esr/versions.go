package esr

import (
	"regexp"
	"strings"
)

const (
	esrVersionPatternConstant         = `^[1-3]\d{3}\.[0-1]\d$`
	osVersionPatternConstant          = `^\d+\.\d+$`
	bspBranchPatternConstant          = `^[1-3]\d{3}\.[0-1]\d\.x$`
	branchSuffixConstant              = ".x"
	tagPrefixConstant                 = "v"
	releasePatchSuffixConstant        = ".0"
	esrVersionFieldNameConstant       = "esr_version"
	osVersionFieldNameConstant        = "os_version"
	bspBranchPatternFieldNameConstant = "bsp_branch_pattern"
	tagVersionFieldNameConstant       = "tag_version"
)

var (
	esrVersionExpression       = regexp.MustCompile(esrVersionPatternConstant)
	osVersionExpression        = regexp.MustCompile(osVersionPatternConstant)
	bspBranchPatternExpression = regexp.MustCompile(bspBranchPatternConstant)
)

// ESRVersion identifies an Extended Support Release line such as 2023.01.
type ESRVersion string

// OSVersion identifies the operating system release line such as 2.68.
type OSVersion string

// ParseESRVersion trims and validates an ESR version.
func ParseESRVersion(raw string) (ESRVersion, error) {
	trimmed := strings.TrimSpace(raw)
	if validationError := ValidateESRVersion(trimmed); validationError != nil {
		return "", validationError
	}
	return ESRVersion(trimmed), nil
}

// ParseOSVersion trims and validates an OS version.
func ParseOSVersion(raw string) (OSVersion, error) {
	trimmed := strings.TrimSpace(raw)
	if validationError := ValidateOSVersion(trimmed); validationError != nil {
		return "", validationError
	}
	return OSVersion(trimmed), nil
}

// ValidateESRVersion checks value against the ESR version pattern.
func ValidateESRVersion(value string) error {
	if !esrVersionExpression.MatchString(value) {
		return ValidationError{Field: esrVersionFieldNameConstant, Value: value, Pattern: esrVersionPatternConstant}
	}
	return nil
}

// ValidateOSVersion checks value against the OS version pattern.
func ValidateOSVersion(value string) error {
	if !osVersionExpression.MatchString(value) {
		return ValidationError{Field: osVersionFieldNameConstant, Value: value, Pattern: osVersionPatternConstant}
	}
	return nil
}

// ValidateBSPBranchPattern checks value against the meta-layer branch pattern.
func ValidateBSPBranchPattern(value string) error {
	if !bspBranchPatternExpression.MatchString(value) {
		return ValidationError{Field: bspBranchPatternFieldNameConstant, Value: value, Pattern: bspBranchPatternConstant}
	}
	return nil
}

// ValidateTagVersion rejects empty tag names.
func ValidateTagVersion(value string) error {
	if len(strings.TrimSpace(value)) == 0 {
		return ValidationError{Field: tagVersionFieldNameConstant, Value: value}
	}
	return nil
}

// String returns the raw version.
func (version ESRVersion) String() string {
	return string(version)
}

// BranchName returns the long-lived ESR branch name, e.g. 2023.01.x.
func (version ESRVersion) BranchName() string {
	return string(version) + branchSuffixConstant
}

// ReleaseVersion returns the first release of the line, e.g. 2023.01.0.
func (version ESRVersion) ReleaseVersion() string {
	return string(version) + releasePatchSuffixConstant
}

// TagName returns the annotated tag name for the first release, e.g. v2023.01.0.
func (version ESRVersion) TagName() string {
	return tagPrefixConstant + version.ReleaseVersion()
}

// String returns the raw version.
func (version OSVersion) String() string {
	return string(version)
}

// BranchName returns the meta-layer branch name, e.g. 2.68.x.
func (version OSVersion) BranchName() string {
	return string(version) + branchSuffixConstant
}

// TagName prefixes value with the release tag marker.
func TagName(value string) string {
	if strings.HasPrefix(value, tagPrefixConstant) {
		return value
	}
	return tagPrefixConstant + value
}

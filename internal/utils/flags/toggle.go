package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	toggleTypeName               = "toggle"
	toggleTrueCanonicalValue     = "true"
	toggleFalseCanonicalValue    = "false"
	toggleParseErrorTemplate     = "invalid toggle value %q"
	toggleTruePlaceholder        = "<YES|no>"
	toggleFalsePlaceholder       = "<yes|NO>"
	toggleUsageEmptyTemplate     = "`%s`"
	toggleUsageFullTemplate      = "`%s` %s"
	longFlagPrefix               = "--"
	shortFlagPrefix              = "-"
	flagValueSeparator           = "="
	argumentTerminatorFlagPrefix = "--"
)

var toggleLiterals = map[string]bool{
	"true": true, "yes": true, "on": true, "1": true, "t": true, "y": true,
	"false": false, "no": false, "off": false, "0": false, "f": false, "n": false,
}

// AddToggleFlag registers a boolean flag accepting yes/no, on/off, true/false
// and 1/0. A bare flag means true.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, shorthand string, defaultValue bool, usage string) {
	if flagSet == nil || target == nil || len(name) == 0 {
		return
	}
	*target = defaultValue
	flag := flagSet.VarPF(&toggleValue{target: target}, name, shorthand, formatToggleUsage(usage, defaultValue))
	flag.NoOptDefVal = toggleTrueCanonicalValue
}

// NormalizeToggleArguments joins "--flag value" into "--flag=value" for every
// toggle flag declared on command or its descendants, so an explicit value
// is not parsed as a positional argument.
func NormalizeToggleArguments(command *cobra.Command, arguments []string) []string {
	longNames, shorthands := collectToggleNames(command)
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == argumentTerminatorFlagPrefix {
			return append(normalized, arguments[index:]...)
		}
		if isBareToggle(current, longNames, shorthands) && index+1 < len(arguments) {
			if _, literal := toggleLiterals[strings.ToLower(arguments[index+1])]; literal {
				normalized = append(normalized, current+flagValueSeparator+arguments[index+1])
				index++
				continue
			}
		}
		normalized = append(normalized, current)
	}
	return normalized
}

type toggleValue struct {
	target *bool
}

func (value *toggleValue) Set(rawValue string) error {
	parsedValue, parseError := parseToggleValue(rawValue)
	if parseError != nil {
		return parseError
	}
	*value.target = parsedValue
	return nil
}

func (value *toggleValue) String() string {
	if value == nil || value.target == nil || !*value.target {
		return toggleFalseCanonicalValue
	}
	return toggleTrueCanonicalValue
}

func (value *toggleValue) Type() string {
	return toggleTypeName
}

func parseToggleValue(rawValue string) (bool, error) {
	trimmedValue := strings.ToLower(strings.TrimSpace(rawValue))
	if len(trimmedValue) == 0 {
		return true, nil
	}
	parsedValue, known := toggleLiterals[trimmedValue]
	if !known {
		return false, fmt.Errorf(toggleParseErrorTemplate, rawValue)
	}
	return parsedValue, nil
}

func formatToggleUsage(description string, defaultValue bool) string {
	placeholder := toggleFalsePlaceholder
	if defaultValue {
		placeholder = toggleTruePlaceholder
	}
	trimmed := strings.TrimSpace(description)
	if len(trimmed) == 0 {
		return fmt.Sprintf(toggleUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(toggleUsageFullTemplate, placeholder, trimmed)
}

func collectToggleNames(command *cobra.Command) (map[string]struct{}, map[string]struct{}) {
	longNames := map[string]struct{}{}
	shorthands := map[string]struct{}{}
	if command == nil {
		return longNames, shorthands
	}

	collect := func(flag *pflag.Flag) {
		if flag.Value.Type() != toggleTypeName {
			return
		}
		longNames[flag.Name] = struct{}{}
		if len(flag.Shorthand) > 0 {
			shorthands[flag.Shorthand] = struct{}{}
		}
	}
	pending := []*cobra.Command{command}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		current.Flags().VisitAll(collect)
		current.PersistentFlags().VisitAll(collect)
		pending = append(pending, current.Commands()...)
	}
	return longNames, shorthands
}

func isBareToggle(argument string, longNames map[string]struct{}, shorthands map[string]struct{}) bool {
	if strings.Contains(argument, flagValueSeparator) {
		return false
	}
	if strings.HasPrefix(argument, longFlagPrefix) {
		_, found := longNames[strings.TrimPrefix(argument, longFlagPrefix)]
		return found
	}
	if strings.HasPrefix(argument, shortFlagPrefix) {
		_, found := shorthands[strings.TrimPrefix(argument, shortFlagPrefix)]
		return found
	}
	return false
}

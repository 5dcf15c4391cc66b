package fleet

import (
	"context"
	"fmt"
	"sort"
)

const (
	deviceTypePathTemplate       = "%s/v6/device_type?$select=slug"
	canonicalDevicesErrorMessage = "fetch canonical device types: %w"
)

type deviceTypeResponse struct {
	Entries []struct {
		Slug string `json:"slug"`
	} `json:"d"`
}

// Classification groups devices by release currency.
type Classification struct {
	Current    map[string]string
	Missing    []string
	Deprecated []string
}

// DefaultDeviceAliases maps repository device slugs to deploy board names.
func DefaultDeviceAliases() map[string]string {
	return map[string]string{
		"intel-nuc":        "genericx86-64",
		"raspberry-pi":     "raspberrypi",
		"raspberry-pi2":    "raspberrypi2",
		"beaglebone-black": "beaglebone",
		"intel-edison":     "edison",
	}
}

// ResolveAlias returns the deploy board name of device.
func (catalog *Catalog) ResolveAlias(device string) string {
	if board, found := catalog.deviceAliases[device]; found {
		return board
	}
	return device
}

// CanonicalDeviceTypes returns the slugs of the cloud device-type catalog.
// Without a cloud token only public device types are listed.
func (catalog *Catalog) CanonicalDeviceTypes(executionContext context.Context) ([]string, error) {
	var response deviceTypeResponse
	requestURL := fmt.Sprintf(deviceTypePathTemplate, catalog.options.CloudAPIURL)
	if fetchError := catalog.getJSON(executionContext, catalog.cloudClient, requestURL, nil, &response); fetchError != nil {
		return nil, fmt.Errorf(canonicalDevicesErrorMessage, fetchError)
	}
	slugs := make([]string, 0, len(response.Entries))
	for _, entry := range response.Entries {
		if len(entry.Slug) > 0 {
			slugs = append(slugs, entry.Slug)
		}
	}
	return slugs, nil
}

// Classify splits released devices (slug to tag) against the canonical list.
// Canonical devices with a release are current, those without are missing.
// Released devices absent from the catalog are deprecated only when
// canonicalComplete is set.
func Classify(released map[string]string, canonical []string, canonicalComplete bool) Classification {
	classification := Classification{Current: make(map[string]string), Missing: []string{}, Deprecated: []string{}}
	canonicalSet := make(map[string]struct{}, len(canonical))
	for _, device := range canonical {
		if _, duplicate := canonicalSet[device]; duplicate {
			continue
		}
		canonicalSet[device] = struct{}{}
		if tag, found := released[device]; found {
			classification.Current[device] = tag
			continue
		}
		classification.Missing = append(classification.Missing, device)
	}
	if canonicalComplete {
		for device := range released {
			if _, found := canonicalSet[device]; !found {
				classification.Deprecated = append(classification.Deprecated, device)
			}
		}
	}
	sort.Strings(classification.Missing)
	sort.Strings(classification.Deprecated)
	return classification
}

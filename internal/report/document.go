package report

import (
	"sort"
	"time"

	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/release"
)

// Document is the serializable view of a release.FleetReport.
type Document struct {
	RunID          string              `json:"run_id" yaml:"run_id" toml:"run_id"`
	ESRVersion     string              `json:"esr_version" yaml:"esr_version" toml:"esr_version"`
	OSVersion      string              `json:"os_version" yaml:"os_version" toml:"os_version"`
	Workspace      string              `json:"workspace" yaml:"workspace" toml:"workspace"`
	DryRun         bool                `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	StartedAt      time.Time           `json:"started_at" yaml:"started_at" toml:"started_at"`
	FinishedAt     time.Time           `json:"finished_at" yaml:"finished_at" toml:"finished_at"`
	Repositories   []RepositoryEntry   `json:"repositories" yaml:"repositories" toml:"repositories"`
	Classification ClassificationEntry `json:"classification" yaml:"classification" toml:"classification"`
	Deploys        []DeployEntry       `json:"deploys,omitempty" yaml:"deploys,omitempty" toml:"deploys,omitempty"`
}

// RepositoryEntry describes one repository of the run.
type RepositoryEntry struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Remote      string   `json:"remote" yaml:"remote" toml:"remote"`
	Path        string   `json:"path" yaml:"path" toml:"path"`
	Status      string   `json:"status" yaml:"status" toml:"status"`
	State       string   `json:"state" yaml:"state" toml:"state"`
	Transitions []string `json:"transitions" yaml:"transitions" toml:"transitions"`
	BaseTag     string   `json:"base_tag,omitempty" yaml:"base_tag,omitempty" toml:"base_tag,omitempty"`
	ReleaseTag  string   `json:"release_tag,omitempty" yaml:"release_tag,omitempty" toml:"release_tag,omitempty"`
	Devices     []string `json:"devices,omitempty" yaml:"devices,omitempty" toml:"devices,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// ClassificationEntry lists released devices against the canonical catalog.
type ClassificationEntry struct {
	Current    map[string]string `json:"current" yaml:"current" toml:"current"`
	Missing    []string          `json:"missing" yaml:"missing" toml:"missing"`
	Deprecated []string          `json:"deprecated" yaml:"deprecated" toml:"deprecated"`
}

// DeployEntry describes one deploy trigger.
type DeployEntry struct {
	Device  string `json:"device" yaml:"device" toml:"device"`
	Tag     string `json:"tag" yaml:"tag" toml:"tag"`
	Skipped bool   `json:"skipped" yaml:"skipped" toml:"skipped"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// NewDocument converts fleetReport into its serializable view.
func NewDocument(fleetReport release.FleetReport) Document {
	document := Document{
		RunID:        fleetReport.RunID,
		ESRVersion:   string(fleetReport.ESRVersion),
		OSVersion:    string(fleetReport.OSVersion),
		Workspace:    fleetReport.Workspace,
		DryRun:       fleetReport.DryRun,
		StartedAt:    fleetReport.StartedAt,
		FinishedAt:   fleetReport.FinishedAt,
		Repositories: make([]RepositoryEntry, 0, len(fleetReport.Repositories)),
		Classification: ClassificationEntry{
			Current:    make(map[string]string, len(fleetReport.Classification.Current)),
			Missing:    append([]string{}, fleetReport.Classification.Missing...),
			Deprecated: append([]string{}, fleetReport.Classification.Deprecated...),
		},
	}

	for _, result := range fleetReport.Repositories {
		transitions := make([]string, 0, len(result.Transitions))
		for _, state := range result.Transitions {
			transitions = append(transitions, string(state))
		}
		document.Repositories = append(document.Repositories, RepositoryEntry{
			Name:        gitrepo.RepositoryName(result.Remote),
			Remote:      result.Remote,
			Path:        result.Path,
			Status:      string(result.Status),
			State:       string(result.State),
			Transitions: transitions,
			BaseTag:     result.BaseTag,
			ReleaseTag:  result.ReleaseTag,
			Devices:     result.Devices,
			Error:       errorText(result.Err),
		})
	}
	for device, tag := range fleetReport.Classification.Current {
		document.Classification.Current[device] = tag
	}
	for _, deploy := range fleetReport.Deploys {
		document.Deploys = append(document.Deploys, DeployEntry{
			Device:  deploy.Device,
			Tag:     deploy.Tag,
			Skipped: deploy.Skipped,
			Error:   errorText(deploy.Err),
		})
	}
	return document
}

// CurrentDevices returns the released canonical devices in name order.
func (document Document) CurrentDevices() []string {
	devices := make([]string, 0, len(document.Classification.Current))
	for device := range document.Classification.Current {
		devices = append(devices, device)
	}
	sort.Strings(devices)
	return devices
}

// StatusCounts tallies repositories per status.
func (document Document) StatusCounts() map[string]int {
	counts := map[string]int{
		string(release.StatusDone):            0,
		string(release.StatusAlreadyReleased): 0,
		string(release.StatusFailed):          0,
	}
	for _, repository := range document.Repositories {
		counts[repository.Status]++
	}
	return counts
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

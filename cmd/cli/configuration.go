package cli

import (
	"time"

	"github.com/temirov/esrctl/internal/report"
)

// Remote lister backends.
const (
	RemoteListerShell  = "shell"
	RemoteListerNative = "native"
)

// Console color modes.
const (
	ColorModeAuto   = "auto"
	ColorModeAlways = "always"
	ColorModeNever  = "never"
)

// ApplicationConfiguration is the persisted configuration of esrctl.
type ApplicationConfiguration struct {
	Common  CommonConfiguration  `mapstructure:"common"`
	GitHub  GitHubConfiguration  `mapstructure:"github"`
	Cloud   CloudConfiguration   `mapstructure:"cloud"`
	Jenkins JenkinsConfiguration `mapstructure:"jenkins"`
	HTTP    HTTPConfiguration    `mapstructure:"http"`
	Release ReleaseConfiguration `mapstructure:"release"`
	Report  ReportConfiguration  `mapstructure:"report"`
}

// CommonConfiguration stores logging settings shared across commands.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// GitHubConfiguration describes repository discovery.
type GitHubConfiguration struct {
	APIURL          string `mapstructure:"api_url"`
	Token           string `mapstructure:"token"`
	Organization    string `mapstructure:"organization"`
	HomepagePattern string `mapstructure:"homepage_pattern"`
	NamePattern     string `mapstructure:"name_pattern"`
	URLField        string `mapstructure:"url_field"`
}

// CloudConfiguration describes the device-type catalog.
type CloudConfiguration struct {
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

// JenkinsConfiguration describes the deploy job.
type JenkinsConfiguration struct {
	URL         string `mapstructure:"url"`
	Job         string `mapstructure:"job"`
	User        string `mapstructure:"user"`
	Token       string `mapstructure:"token"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfiguration bounds outbound requests.
type HTTPConfiguration struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReleaseConfiguration tunes the fleet run.
type ReleaseConfiguration struct {
	Workspace             string            `mapstructure:"workspace"`
	KeepWorkspace         bool              `mapstructure:"keep_workspace"`
	Concurrency           int               `mapstructure:"concurrency"`
	DryRun                bool              `mapstructure:"dry_run"`
	FailOnRepositoryError bool              `mapstructure:"fail_on_repository_error"`
	RemoteLister          string            `mapstructure:"remote_lister"`
	Repositories          []string          `mapstructure:"repositories"`
	MetaLayerPath         string            `mapstructure:"meta_layer_path"`
	RemoteName            string            `mapstructure:"remote_name"`
	SubmoduleTargets      []string          `mapstructure:"submodule_targets"`
	DeviceTypeScript      string            `mapstructure:"device_type_script"`
	DeviceAliases         map[string]string `mapstructure:"device_aliases"`
}

// ReportConfiguration selects the run outputs.
type ReportConfiguration struct {
	File            string `mapstructure:"file"`
	Format          string `mapstructure:"format"`
	Color           string `mapstructure:"color"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

var (
	remoteListerChoices = []string{RemoteListerShell, RemoteListerNative}
	colorModeChoices    = []string{ColorModeAuto, ColorModeAlways, ColorModeNever}
	reportFormatChoices = []string{string(report.FormatJSON), string(report.FormatYAML), string(report.FormatTOML)}
)

package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"

	"github.com/temirov/esrctl/internal/execshell"
)

const (
	metricsNamespaceConstant        = "esrctl"
	statusLabelConstant             = "status"
	classificationLabelConstant     = "classification"
	resultLabelConstant             = "result"
	commandLabelConstant            = "command"
	subcommandLabelConstant         = "subcommand"
	currentClassificationConstant   = "current"
	missingClassificationConstant   = "missing"
	deprecatedClassificationConst   = "deprecated"
	deploySkippedResultConstant     = "skipped"
	deployTriggeredResultConstant   = "triggered"
	deployFailedResultConstant      = "failed"
	commandSucceededResultConstant  = "success"
	commandFailedResultConstant     = "failure"
	commandErroredResultConstant    = "error"
	flagPrefixConstant              = "-"
	temporaryTextfileSuffixConstant = ".tmp"
	writeMetricsErrorTemplate       = "write metrics %s: %w"
)

// Metrics holds the run gauges and git command counters of one process.
// It implements execshell.CommandEventObserver.
type Metrics struct {
	registry       *prometheus.Registry
	repositories   *prometheus.GaugeVec
	devices        *prometheus.GaugeVec
	deploys        *prometheus.GaugeVec
	runDuration    prometheus.Gauge
	runFinished    prometheus.Gauge
	commandResults *prometheus.CounterVec
}

// NewMetrics registers the esrctl metrics on a private registry.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		repositories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "repositories",
			Help:      "Repositories of the last run by final status",
		}, []string{statusLabelConstant}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "devices",
			Help:      "Device types of the last run by classification",
		}, []string{classificationLabelConstant}),
		deploys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "deploys",
			Help:      "Deploy triggers of the last run by result",
		}, []string{resultLabelConstant}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		runFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "run_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		commandResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "commands_total",
			Help:      "External commands by subcommand and result",
		}, []string{commandLabelConstant, subcommandLabelConstant, resultLabelConstant}),
	}
	metrics.registry.MustRegister(metrics.repositories, metrics.devices, metrics.deploys, metrics.runDuration, metrics.runFinished, metrics.commandResults)
	return metrics
}

// ObserveRun records the outcome of document.
func (metrics *Metrics) ObserveRun(document Document) {
	for status, count := range document.StatusCounts() {
		metrics.repositories.WithLabelValues(status).Set(float64(count))
	}

	metrics.devices.WithLabelValues(currentClassificationConstant).Set(float64(len(document.Classification.Current)))
	metrics.devices.WithLabelValues(missingClassificationConstant).Set(float64(len(document.Classification.Missing)))
	metrics.devices.WithLabelValues(deprecatedClassificationConst).Set(float64(len(document.Classification.Deprecated)))

	deployCounts := map[string]int{deploySkippedResultConstant: 0, deployTriggeredResultConstant: 0, deployFailedResultConstant: 0}
	for _, deploy := range document.Deploys {
		switch {
		case deploy.Skipped:
			deployCounts[deploySkippedResultConstant]++
		case len(deploy.Error) > 0:
			deployCounts[deployFailedResultConstant]++
		default:
			deployCounts[deployTriggeredResultConstant]++
		}
	}
	for result, count := range deployCounts {
		metrics.deploys.WithLabelValues(result).Set(float64(count))
	}

	if !document.FinishedAt.IsZero() {
		metrics.runDuration.Set(document.FinishedAt.Sub(document.StartedAt).Seconds())
		metrics.runFinished.Set(float64(document.FinishedAt.Unix()))
	}
}

// CommandStarted implements execshell.CommandEventObserver.
func (metrics *Metrics) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted counts a command by its exit status.
func (metrics *Metrics) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	outcome := commandSucceededResultConstant
	if result.ExitCode != 0 {
		outcome = commandFailedResultConstant
	}
	metrics.countCommand(command, outcome)
}

// CommandExecutionFailed counts a command that could not be started.
func (metrics *Metrics) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	metrics.countCommand(command, commandErroredResultConstant)
}

func (metrics *Metrics) countCommand(command execshell.ShellCommand, outcome string) {
	metrics.commandResults.WithLabelValues(string(command.Name), subcommandOf(command), outcome).Inc()
}

// WriteTextfile writes every metric in the Prometheus text format to path via
// a temporary file and a rename.
func (metrics *Metrics) WriteTextfile(filesystem afero.Fs, path string) error {
	if filesystem == nil {
		return ErrFilesystemNotConfigured
	}
	families, gatherError := metrics.registry.Gather()
	if gatherError != nil {
		return fmt.Errorf(writeMetricsErrorTemplate, path, gatherError)
	}
	if mkdirError := filesystem.MkdirAll(filepath.Dir(path), reportDirectoryPermissions); mkdirError != nil {
		return fmt.Errorf(writeMetricsErrorTemplate, path, mkdirError)
	}

	temporaryPath := path + temporaryTextfileSuffixConstant
	file, createError := filesystem.Create(temporaryPath)
	if createError != nil {
		return fmt.Errorf(writeMetricsErrorTemplate, path, createError)
	}
	for _, family := range families {
		if _, encodeError := expfmt.MetricFamilyToText(file, family); encodeError != nil {
			_ = file.Close()
			return fmt.Errorf(writeMetricsErrorTemplate, path, encodeError)
		}
	}
	if closeError := file.Close(); closeError != nil {
		return fmt.Errorf(writeMetricsErrorTemplate, path, closeError)
	}
	if renameError := filesystem.Rename(temporaryPath, path); renameError != nil {
		return fmt.Errorf(writeMetricsErrorTemplate, path, renameError)
	}
	return nil
}

func subcommandOf(command execshell.ShellCommand) string {
	for _, argument := range command.Details.Arguments {
		if !strings.HasPrefix(argument, flagPrefixConstant) {
			return argument
		}
	}
	return ""
}

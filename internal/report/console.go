package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/temirov/esrctl/internal/release"
)

const (
	tableMaxColumnWidthConstant   = 72
	listSeparatorConstant         = ", "
	emptyCellConstant             = "-"
	headerTemplateConstant        = "ESR %s (OS %s), run %s"
	dryRunHeaderSuffixConstant    = " [dry run]"
	summaryTemplateConstant       = "%s: %s\n"
	deploySkippedLabelConstant    = "skipped"
	deployTriggeredLabelConstant  = "triggered"
	deployFailedLabelConstant     = "failed: "
	currentDevicesLabelConstant   = "Released devices"
	missingDevicesLabelConstant   = "Missing devices"
	deprecatedDeviceLabelConstant = "Deprecated devices"
	deploysHeadingConstant        = "Deploys"
)

var (
	// ErrWriterNotConfigured indicates the console renderer has no output.
	ErrWriterNotConfigured = errors.New("report writer not configured")

	repositoryHeaderRow = []any{"REPOSITORY", "STATUS", "STATE", "TAG", "DEVICES", "ERROR"}
	deployHeaderRow     = []any{"DEVICE", "TAG", "RESULT"}
)

// ConsoleRenderer prints a Document as aligned tables.
type ConsoleRenderer struct {
	writer        io.Writer
	successColor  *color.Color
	releasedColor *color.Color
	failureColor  *color.Color
}

// NewConsoleRenderer constructs a renderer writing to writer. Status cells
// are colored only when colorEnabled is set.
func NewConsoleRenderer(writer io.Writer, colorEnabled bool) (*ConsoleRenderer, error) {
	if writer == nil {
		return nil, ErrWriterNotConfigured
	}
	renderer := &ConsoleRenderer{
		writer:        writer,
		successColor:  color.New(color.FgGreen),
		releasedColor: color.New(color.FgYellow),
		failureColor:  color.New(color.FgRed, color.Bold),
	}
	for _, statusColor := range []*color.Color{renderer.successColor, renderer.releasedColor, renderer.failureColor} {
		if colorEnabled {
			statusColor.EnableColor()
		} else {
			statusColor.DisableColor()
		}
	}
	return renderer, nil
}

// Render prints the run header, the repository table, the classification
// summary and the deploy table when deploys were attempted.
func (renderer *ConsoleRenderer) Render(document Document) error {
	header := fmt.Sprintf(headerTemplateConstant, document.ESRVersion, document.OSVersion, document.RunID)
	if document.DryRun {
		header += dryRunHeaderSuffixConstant
	}
	if _, writeError := fmt.Fprintln(renderer.writer, header); writeError != nil {
		return writeError
	}

	repositoryTable := newTable()
	repositoryTable.AddRow(repositoryHeaderRow...)
	for _, repository := range document.Repositories {
		repositoryTable.AddRow(
			repository.Name,
			renderer.colorStatus(repository.Status),
			repository.State,
			cellValue(repository.ReleaseTag),
			cellValue(strings.Join(repository.Devices, listSeparatorConstant)),
			cellValue(repository.Error),
		)
	}
	if _, writeError := fmt.Fprintln(renderer.writer, repositoryTable); writeError != nil {
		return writeError
	}

	summaries := []struct {
		label   string
		devices []string
	}{
		{label: currentDevicesLabelConstant, devices: document.CurrentDevices()},
		{label: missingDevicesLabelConstant, devices: document.Classification.Missing},
		{label: deprecatedDeviceLabelConstant, devices: document.Classification.Deprecated},
	}
	for _, summary := range summaries {
		if _, writeError := fmt.Fprintf(renderer.writer, summaryTemplateConstant, summary.label, cellValue(strings.Join(summary.devices, listSeparatorConstant))); writeError != nil {
			return writeError
		}
	}

	if len(document.Deploys) == 0 {
		return nil
	}
	deployTable := newTable()
	deployTable.AddRow(deployHeaderRow...)
	for _, deploy := range document.Deploys {
		deployTable.AddRow(deploy.Device, deploy.Tag, renderer.deployResult(deploy))
	}
	_, writeError := fmt.Fprintf(renderer.writer, "%s:\n%s\n", deploysHeadingConstant, deployTable)
	return writeError
}

func (renderer *ConsoleRenderer) colorStatus(status string) string {
	switch status {
	case string(release.StatusDone):
		return renderer.successColor.Sprint(status)
	case string(release.StatusAlreadyReleased):
		return renderer.releasedColor.Sprint(status)
	default:
		return renderer.failureColor.Sprint(status)
	}
}

func (renderer *ConsoleRenderer) deployResult(deploy DeployEntry) string {
	switch {
	case deploy.Skipped:
		return deploySkippedLabelConstant
	case len(deploy.Error) > 0:
		return renderer.failureColor.Sprint(deployFailedLabelConstant + deploy.Error)
	default:
		return renderer.successColor.Sprint(deployTriggeredLabelConstant)
	}
}

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = tableMaxColumnWidthConstant
	table.Wrap = true
	return table
}

func cellValue(value string) string {
	if len(strings.TrimSpace(value)) == 0 {
		return emptyCellConstant
	}
	return value
}

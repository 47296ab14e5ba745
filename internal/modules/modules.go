// Package modules holds the cleanup modules: driver packages, devices and
// driver store INFs. Each module is a cleanup.Module paired with the dump
// source used by --dump.
package modules

import (
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/dump"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
	"github.com/tabletdrivercleanup/tdc/internal/sysinfo"
)

var log = logging.L("modules")

// Entry is one module as run by the CLI.
type Entry struct {
	Runner cleanup.Runner
	Dump   dump.Source
}

// Metadata returns the module's metadata.
func (e Entry) Metadata() cleanup.Metadata {
	return e.Runner.Metadata()
}

// All returns the modules in the order they run.
func All(exec Executor, interest *matcher.Interest) []Entry {
	pkg := NewDriverPackageModule(exec)
	dev := NewDeviceModule()
	drv := NewDriverModule()
	return []Entry{
		{Runner: cleanup.Bind[sysinfo.DriverPackage, DriverPackageCriterion](pkg), Dump: pkg.DumpSource(interest)},
		{Runner: cleanup.Bind[sysinfo.Device, DeviceCriterion](dev), Dump: dev.DumpSource(interest)},
		{Runner: cleanup.Bind[sysinfo.Driver, DriverCriterion](drv), Dump: drv.DumpSource(interest)},
	}
}

// Metadata returns the metadata of every module in run order.
func Metadata() []cleanup.Metadata {
	return []cleanup.Metadata{
		(&DriverPackageModule{}).Metadata(),
		(&DeviceModule{}).Metadata(),
		(&DriverModule{}).Metadata(),
	}
}

// Enabled filters entries, keeping those whose CLI name enabled accepts.
func Enabled(entries []Entry, enabled func(cliName string) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !enabled(e.Metadata().CLIName) {
			log.Info("module disabled", logging.KeyModule, e.Metadata().Name)
			continue
		}
		out = append(out, e)
	}
	return out
}

func requireFriendlyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NotValidf("empty friendly_name")
	}
	return nil
}

type field struct {
	key   string
	value *string
}

// constraints renders the present fields as key=value pairs.
func constraints(fields ...field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value != nil {
			parts = append(parts, f.key+"="+*f.value)
		}
	}
	return strings.Join(parts, ", ")
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func matchClass(want *uuid.UUID, actual uuid.UUID) bool {
	return want == nil || *want == actual
}

package modules

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/dump"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
	"github.com/tabletdrivercleanup/tdc/internal/sysinfo"
)

// DriverCriterion selects third-party INFs in the driver store.
type DriverCriterion struct {
	FriendlyName string     `json:"friendly_name"`
	OriginalName *string    `json:"original_name"`
	Provider     *string    `json:"provider"`
	Class        *uuid.UUID `json:"class"`
}

func (c DriverCriterion) Matches(m *matcher.Cache, d sysinfo.Driver) bool {
	return m.MatchField(d.InfOriginalName, c.OriginalName) &&
		m.MatchField(d.Provider, c.Provider) &&
		matchClass(c.Class, d.ClassGUID)
}

func (c DriverCriterion) Validate() error {
	return requireFriendlyName(c.FriendlyName)
}

func (c DriverCriterion) Constraints() string {
	return constraints(
		field{"original_name", c.OriginalName},
		field{"provider", c.Provider},
		field{"class", uuidString(c.Class)},
	)
}

func (c DriverCriterion) String() string { return c.FriendlyName }

// DriverModule uninstalls driver store INFs.
type DriverModule struct {
	enumerate func(context.Context) ([]sysinfo.Driver, error)
	remove    func(sysinfo.Driver) (bool, error)
}

// NewDriverModule returns the module backed by the driver store.
func NewDriverModule() *DriverModule {
	return &DriverModule{
		enumerate: sysinfo.Drivers,
		remove:    sysinfo.UninstallDriver,
	}
}

func (m *DriverModule) Metadata() cleanup.Metadata {
	return cleanup.Metadata{
		Name:       "Driver Cleanup",
		CLIName:    "driver-cleanup",
		Help:       "uninstall device drivers from the system",
		Noun:       "drivers",
		Identifier: "driver_identifiers.json",
	}
}

func (m *DriverModule) Enumerate(ctx context.Context) ([]sysinfo.Driver, error) {
	return m.enumerate(ctx)
}

func (m *DriverModule) Uninstall(_ context.Context, d sysinfo.Driver, c DriverCriterion, _ *cleanup.Env, result *cleanup.RunResult) error {
	reboot, err := m.remove(d)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot uninstall %s", d), cleanup.ErrUninstallFailed)
	}
	log.Info("driver uninstalled", logging.KeyObject, d.InfName, logging.KeyCriterion, c.FriendlyName, "rebootRequired", reboot)
	if reboot {
		result.RequireReboot()
	}
	return nil
}

// DumpSource dumps driver store INFs that look tablet related.
func (m *DriverModule) DumpSource(interest *matcher.Interest) dump.Source {
	return dump.Of(m.Metadata(), "drivers.json", m.enumerate, func(d sysinfo.Driver) bool {
		return interest.Any(matcher.Present(d.InfOriginalName, d.Provider)...)
	}, dump.WithWording(dump.DumpedInto))
}

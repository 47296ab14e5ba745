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

// DeviceCriterion selects present devices.
type DeviceCriterion struct {
	FriendlyName string     `json:"friendly_name"`
	DeviceDesc   *string    `json:"device_desc"`
	Manufacturer *string    `json:"manufacturer"`
	HardwareID   *string    `json:"hardware_id"`
	ClassUUID    *uuid.UUID `json:"class_uuid"`
}

func (c DeviceCriterion) Matches(m *matcher.Cache, d sysinfo.Device) bool {
	return m.MatchField(d.Description, c.DeviceDesc) &&
		m.MatchField(d.Manufacturer, c.Manufacturer) &&
		matchClass(c.ClassUUID, d.ClassGUID) &&
		m.MatchAny(d.HardwareIDs, c.HardwareID)
}

func (c DeviceCriterion) Validate() error {
	return requireFriendlyName(c.FriendlyName)
}

func (c DeviceCriterion) Constraints() string {
	return constraints(
		field{"device_desc", c.DeviceDesc},
		field{"manufacturer", c.Manufacturer},
		field{"hardware_id", c.HardwareID},
		field{"class_uuid", uuidString(c.ClassUUID)},
	)
}

func (c DeviceCriterion) String() string { return c.FriendlyName }

// DeviceModule removes present devices.
type DeviceModule struct {
	enumerate func(context.Context) ([]sysinfo.Device, error)
	remove    func(instanceID string) (bool, error)
}

// NewDeviceModule returns the module backed by SetupAPI.
func NewDeviceModule() *DeviceModule {
	return &DeviceModule{
		enumerate: sysinfo.Devices,
		remove:    sysinfo.UninstallDevice,
	}
}

func (m *DeviceModule) Metadata() cleanup.Metadata {
	return cleanup.Metadata{
		Name:       "Device Cleanup",
		CLIName:    "device-cleanup",
		Help:       "remove devices from the system",
		Noun:       "devices",
		Identifier: "device_identifiers.json",
	}
}

func (m *DeviceModule) Enumerate(ctx context.Context) ([]sysinfo.Device, error) {
	return m.enumerate(ctx)
}

func (m *DeviceModule) Uninstall(_ context.Context, d sysinfo.Device, c DeviceCriterion, _ *cleanup.Env, result *cleanup.RunResult) error {
	reboot, err := m.remove(d.InstanceID)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot remove device %s", d.InstanceID), cleanup.ErrUninstallFailed)
	}
	log.Info("device removed", logging.KeyObject, d.InstanceID, logging.KeyCriterion, c.FriendlyName, "rebootRequired", reboot)
	if reboot {
		result.RequireReboot()
	}
	return nil
}

// DumpSource dumps devices bound to a third-party INF that look tablet
// related.
func (m *DeviceModule) DumpSource(interest *matcher.Interest) dump.Source {
	return dump.Of(m.Metadata(), "devices.json", m.enumerate, func(d sysinfo.Device) bool {
		if d.InfName == nil || !sysinfo.OEMInfPattern.MatchString(*d.InfName) {
			return false
		}
		candidates := append(matcher.Present(d.Description, d.Manufacturer, d.InfOriginalName), d.HardwareIDs...)
		return interest.Any(candidates...)
	})
}

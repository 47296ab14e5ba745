// Package sysinfo enumerates and removes the Windows objects a cleanup can
// target: present devices, third-party driver INFs in the driver store and
// the installed software registered under the Uninstall keys.
package sysinfo

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("sysinfo")

const (
	// UninstallKey and UninstallKeyX86 are relative to HKLM.
	UninstallKey    = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`
	UninstallKeyX86 = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`
)

// OEMInfPattern matches the names Windows gives third-party INFs when they
// are staged, e.g. oem12.inf.
var OEMInfPattern = regexp.MustCompile(`^oem[0-9]+\.inf$`)

// Device is a present device node.
type Device struct {
	IsGeneric           bool      `json:"is_generic"`
	InstanceID          string    `json:"instance_id"`
	HardwareIDs         []string  `json:"hardware_ids"`
	FriendlyName        *string   `json:"friendly_name"`
	Description         *string   `json:"description"`
	Manufacturer        *string   `json:"manufacturer"`
	DriverName          *string   `json:"driver_name"`
	Class               *string   `json:"class"`
	ClassGUID           uuid.UUID `json:"class_guid"`
	InfName             *string   `json:"inf_name"`
	InfOriginalName     *string   `json:"inf_original_name"`
	InfSection          *string   `json:"inf_section"`
	InfProvider         *string   `json:"inf_provider"`
	DriverStoreLocation *string   `json:"driver_store_location"`
}

// Name returns the friendly name, falling back to the description.
func (d Device) Name() *string {
	if d.FriendlyName != nil {
		return d.FriendlyName
	}
	return d.Description
}

func (d Device) String() string {
	if name := d.Name(); name != nil {
		return *name + " (" + d.InstanceID + ")"
	}
	return d.InstanceID
}

// Driver is a third-party INF staged in the driver store.
type Driver struct {
	InfName             string    `json:"inf_name"`
	InfOriginalName     *string   `json:"inf_original_name"`
	DriverStoreLocation *string   `json:"driver_store_location"`
	Provider            *string   `json:"provider"`
	Class               *string   `json:"class"`
	ClassGUID           uuid.UUID `json:"class_guid"`
}

func (d Driver) String() string {
	if d.InfOriginalName != nil {
		return d.InfName + " (" + *d.InfOriginalName + ")"
	}
	return d.InfName
}

// StorePath returns the full path of the INF inside the driver store.
func (d Driver) StorePath() (string, bool) {
	if d.DriverStoreLocation == nil || d.InfOriginalName == nil {
		return "", false
	}
	return *d.DriverStoreLocation + `\` + *d.InfOriginalName, true
}

// DriverPackage is an entry under one of the Uninstall keys.
type DriverPackage struct {
	// X86 is set for entries read from the WOW6432Node view.
	X86 bool `json:"x86"`
	// KeyName is the entry's path relative to HKLM.
	KeyName         string  `json:"key_name"`
	DisplayName     *string `json:"display_name"`
	DisplayVersion  *string `json:"display_version"`
	Publisher       *string `json:"publisher"`
	InstallLocation *string `json:"install_location"`
	UninstallString *string `json:"uninstall_string"`
}

func (p DriverPackage) String() string {
	if p.DisplayName != nil {
		return *p.DisplayName
	}
	return p.KeyName
}

// ParentKey returns the Uninstall key the package is registered under.
func (p DriverPackage) ParentKey() string {
	if p.X86 {
		return UninstallKeyX86
	}
	return UninstallKey
}

// SubKey returns the package's key name relative to ParentKey.
func (p DriverPackage) SubKey() string {
	return strings.TrimPrefix(p.KeyName, p.ParentKey()+`\`)
}

// splitStorePath splits a driver store INF path into its directory and file
// name.
func splitStorePath(p string) (dir, file *string) {
	if p == "" {
		return nil, nil
	}
	i := strings.LastIndexAny(p, `\/`)
	if i < 0 {
		return nil, &p
	}
	d, f := p[:i], p[i+1:]
	return &d, &f
}

// optional maps an empty value to absent.
func optional(s string) *string {
	s = strings.TrimRight(s, "\x00")
	if s == "" {
		return nil
	}
	return &s
}

// parseGUID parses a class GUID with or without braces. Malformed values
// yield the nil UUID.
func parseGUID(s string) uuid.UUID {
	s = strings.Trim(strings.TrimSpace(s), "{}")
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

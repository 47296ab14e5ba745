//go:build windows

package sysinfo

import (
	"context"
	"os/exec"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/sys/windows/registry"
)

// DriverPackages lists the entries of both Uninstall keys. The native key
// must be readable; the WOW6432Node view is optional.
func DriverPackages(ctx context.Context) ([]DriverPackage, error) {
	packages, err := readUninstallKey(ctx, UninstallKey, false)
	if err != nil {
		return nil, err
	}
	x86, err := readUninstallKey(ctx, UninstallKeyX86, true)
	if err != nil {
		log.Debug("x86 uninstall key unavailable", "key", UninstallKeyX86, "error", err)
	}
	packages = append(packages, x86...)
	log.Debug("driver packages enumerated", "count", len(packages))
	return packages, nil
}

func readUninstallKey(ctx context.Context, path string, x86 bool) ([]DriverPackage, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.READ)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open registry key '%s'", path)
	}
	defer key.Close()

	names, err := key.ReadSubKeyNames(-1)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot list subkeys of '%s'", path)
	}

	var packages []DriverPackage
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		subkey, err := registry.OpenKey(key, name, registry.READ)
		if err != nil {
			continue
		}
		packages = append(packages, DriverPackage{
			X86:             x86,
			KeyName:         path + `\` + name,
			DisplayName:     readString(subkey, "DisplayName"),
			DisplayVersion:  readString(subkey, "DisplayVersion"),
			Publisher:       readString(subkey, "Publisher"),
			InstallLocation: readString(subkey, "InstallLocation"),
			UninstallString: readString(subkey, "UninstallString"),
		})
		subkey.Close()
	}
	return packages, nil
}

func readString(key registry.Key, name string) *string {
	val, _, err := key.GetStringValue(name)
	if err != nil {
		return nil
	}
	return optional(strings.TrimSpace(val))
}

// DeleteUninstallKey removes the package's registration, including every
// value and subkey below it.
func DeleteUninstallKey(p DriverPackage) error {
	parent, err := registry.OpenKey(registry.LOCAL_MACHINE, p.ParentKey(), registry.ALL_ACCESS)
	if err != nil {
		return errors.Annotatef(err, "failed to open uninstall key for driver package '%s'", p)
	}
	defer parent.Close()

	sub := p.SubKey()
	if sub == "" || sub == p.KeyName {
		return errors.NotValidf("uninstall key %q", p.KeyName)
	}
	if err := deleteKeyTree(parent, sub); err != nil {
		return errors.Annotatef(err, "failed to delete uninstall key for driver package '%s'", p)
	}
	log.Info("uninstall key deleted", "key", p.KeyName)
	return nil
}

// deleteKeyTree deletes path below parent depth first. registry.DeleteKey
// only removes keys without subkeys.
func deleteKeyTree(parent registry.Key, path string) error {
	key, err := registry.OpenKey(parent, path, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		return errors.Annotatef(err, "open %s", path)
	}
	children, err := key.ReadSubKeyNames(-1)
	key.Close()
	if err != nil {
		return errors.Annotatef(err, "list %s", path)
	}
	for _, child := range children {
		if err := deleteKeyTree(parent, path+`\`+child); err != nil {
			return err
		}
	}
	if err := registry.DeleteKey(parent, path); err != nil {
		return errors.Annotatef(err, "delete %s", path)
	}
	return nil
}

// Reboot restarts the machine immediately.
func Reboot(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "shutdown", "/r", "/t", "0").CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "shutdown failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

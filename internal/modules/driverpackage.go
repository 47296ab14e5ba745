package modules

import (
	"context"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/dump"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
	"github.com/tabletdrivercleanup/tdc/internal/sysinfo"
	"github.com/tabletdrivercleanup/tdc/internal/uninstall"
)

// Executor runs a package's uninstall command line. *uninstall.Supervisor
// implements it.
type Executor interface {
	Execute(ctx context.Context, commandLine string, method uninstall.Method, env *cleanup.Env) error
}

// DriverPackageCriterion selects installed software by its uninstall
// registration.
type DriverPackageCriterion struct {
	FriendlyName    string            `json:"friendly_name"`
	DisplayName     *string           `json:"display_name"`
	DisplayVersion  *string           `json:"display_version"`
	Publisher       *string           `json:"publisher"`
	UninstallMethod *uninstall.Method `json:"uninstall_method"`
}

func (c DriverPackageCriterion) Matches(m *matcher.Cache, p sysinfo.DriverPackage) bool {
	return m.MatchField(p.DisplayName, c.DisplayName) &&
		m.MatchField(p.DisplayVersion, c.DisplayVersion) &&
		m.MatchField(p.Publisher, c.Publisher)
}

func (c DriverPackageCriterion) Validate() error {
	if err := requireFriendlyName(c.FriendlyName); err != nil {
		return err
	}
	if c.UninstallMethod == nil {
		return errors.NotValidf("missing uninstall_method for %q", c.FriendlyName)
	}
	return nil
}

func (c DriverPackageCriterion) Constraints() string {
	var method *string
	if c.UninstallMethod != nil {
		s := c.UninstallMethod.String()
		method = &s
	}
	return constraints(
		field{"display_name", c.DisplayName},
		field{"display_version", c.DisplayVersion},
		field{"publisher", c.Publisher},
		field{"uninstall_method", method},
	)
}

func (c DriverPackageCriterion) String() string { return c.FriendlyName }

// DriverPackageModule runs vendor uninstallers, or drops their registration.
type DriverPackageModule struct {
	exec      Executor
	enumerate func(context.Context) ([]sysinfo.DriverPackage, error)
	deleteKey func(sysinfo.DriverPackage) error
}

// NewDriverPackageModule returns the module backed by the Uninstall keys.
func NewDriverPackageModule(exec Executor) *DriverPackageModule {
	return &DriverPackageModule{
		exec:      exec,
		enumerate: sysinfo.DriverPackages,
		deleteKey: sysinfo.DeleteUninstallKey,
	}
}

func (m *DriverPackageModule) Metadata() cleanup.Metadata {
	return cleanup.Metadata{
		Name:       "Driver Package Cleanup",
		CLIName:    "driver-package-cleanup",
		Help:       "uninstall driver software packages",
		Noun:       "driver packages",
		Identifier: "driver_package_identifiers.json",
	}
}

func (m *DriverPackageModule) Enumerate(ctx context.Context) ([]sysinfo.DriverPackage, error) {
	return m.enumerate(ctx)
}

func (m *DriverPackageModule) Uninstall(ctx context.Context, p sysinfo.DriverPackage, c DriverPackageCriterion, env *cleanup.Env, _ *cleanup.RunResult) error {
	plog := log.With(logging.KeyObject, p.KeyName, logging.KeyCriterion, c.FriendlyName)
	method := *c.UninstallMethod

	if method == uninstall.RegistryOnly {
		if err := m.deleteKey(p); err != nil {
			return errors.WithType(errors.Annotatef(err, "cannot delete uninstall key of %s", p), cleanup.ErrUninstallFailed)
		}
		plog.Info("uninstall registration deleted")
		return nil
	}

	if p.UninstallString == nil {
		return errors.WithType(errors.NotFoundf("uninstall string of %s", p), cleanup.ErrUninstallFailed)
	}
	plog.Info("running uninstaller", "method", method, "commandLine", *p.UninstallString)
	if err := m.exec.Execute(ctx, *p.UninstallString, method, env); err != nil {
		return errors.Annotatef(err, "%s", p)
	}
	plog.Info("uninstaller finished")
	return nil
}

// DumpSource dumps uninstallable software that looks tablet related.
func (m *DriverPackageModule) DumpSource(interest *matcher.Interest) dump.Source {
	return dump.Of(m.Metadata(), "driver-packages.json", m.enumerate, func(p sysinfo.DriverPackage) bool {
		if p.DisplayName == nil || p.UninstallString == nil {
			return false
		}
		return interest.Any(matcher.Present(p.DisplayName, p.Publisher, p.UninstallString)...)
	}, dump.WithWording(dump.DumpedInto))
}

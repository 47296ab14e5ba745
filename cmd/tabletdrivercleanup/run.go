package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/config"
	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/dump"
	"github.com/tabletdrivercleanup/tdc/internal/httputil"
	"github.com/tabletdrivercleanup/tdc/internal/identifiers"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
	"github.com/tabletdrivercleanup/tdc/internal/modules"
	"github.com/tabletdrivercleanup/tdc/internal/privilege"
	"github.com/tabletdrivercleanup/tdc/internal/sysinfo"
	"github.com/tabletdrivercleanup/tdc/internal/uninstall"
)

func runRoot(ctx context.Context) (int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return exitFailure, err
	}

	closeLog := initLogging(cfg)
	defer closeLog()

	if err := console.EnableVirtualTerminal(); err != nil {
		log.Warn("cannot enable virtual terminal processing", logging.Err(err))
	}

	fmt.Println(console.Header("TabletDriverCleanup v" + version))
	logHost(ctx)

	entries := enabledModules(cfg)
	term := console.New(os.Stdin, os.Stdout)
	a := &app{
		state:            sessionState(cfg),
		keys:             term,
		out:              os.Stdout,
		errOut:           os.Stderr,
		requireElevation: privilege.Require,
		reboot:           sysinfo.Reboot,
	}

	if opts.dump {
		sources := make([]dump.Source, 0, len(entries))
		for _, e := range entries {
			sources = append(sources, e.Dump)
		}
		return a.dump(ctx, cfg.DumpDir, cfg.DumpWorkers, sources), nil
	}

	env := &cleanup.Env{
		State:    a.state,
		Resolver: newResolver(cfg),
		Matcher:  matcher.NewCache(),
		Prompter: term,
		Keys:     term,
		Out:      os.Stdout,
		Err:      os.Stderr,
	}
	runners := make([]cleanup.Runner, 0, len(entries))
	for _, e := range entries {
		runners = append(runners, e.Runner)
	}
	return a.cleanup(ctx, runners, env), nil
}

// initLogging sends the log to the rotating log file, or to stderr when the
// file cannot be opened.
func initLogging(cfg *config.Config) func() {
	rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)
		log.Warn("cannot open log file, logging to stderr", "path", cfg.LogFile, logging.Err(err))
		return func() {}
	}
	var out io.Writer = rw
	if strings.EqualFold(cfg.LogLevel, "debug") {
		out = logging.TeeWriter(rw, os.Stderr)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
	log.Info("starting", "version", version, "logFile", rw.Path(), "dryRun", cfg.DryRun, "interactive", cfg.Interactive,
		"useCache", cfg.UseCache, "allowUpdates", cfg.AllowUpdates, "disabledModules", cfg.DisabledModules)
	return func() { rw.Close() }
}

func logHost(ctx context.Context) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn("cannot read host info", logging.Err(err))
		return
	}
	log.Info("host", "platform", info.Platform, "platformVersion", info.PlatformVersion,
		"kernelVersion", info.KernelVersion, "arch", info.KernelArch)
}

func enabledModules(cfg *config.Config) []modules.Entry {
	supervisor := uninstall.NewSupervisor(
		uninstall.WithGracePeriod(time.Duration(cfg.GracePeriodMs)*time.Millisecond),
		uninstall.WithPollInterval(time.Duration(cfg.PollIntervalMs)*time.Millisecond),
	)
	return modules.Enabled(modules.All(supervisor, matcher.DefaultInterest()), cfg.ModuleEnabled)
}

func newResolver(cfg *config.Config) *identifiers.Resolver {
	retry := httputil.DefaultRetryConfig()
	retry.MaxRetries = cfg.HTTPMaxRetries
	return identifiers.New(identifiers.Options{
		CacheDir:     cfg.CacheDir,
		UseCache:     cfg.UseCache,
		AllowUpdates: cfg.AllowUpdates,
		BaseURL:      cfg.IdentifiersBaseURL,
		Ref:          cfg.IdentifiersRef,
		Timeout:      time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		Retry:        retry,
	})
}

func listIdentifiers(ctx context.Context, w io.Writer, cfg *config.Config) error {
	env := &cleanup.Env{Resolver: newResolver(cfg), Matcher: matcher.NewCache()}
	for _, e := range enabledModules(cfg) {
		if err := printListing(ctx, w, e.Runner, env); err != nil {
			return err
		}
	}
	return nil
}

func printListing(ctx context.Context, w io.Writer, r cleanup.Runner, env *cleanup.Env) error {
	meta := r.Metadata()
	source, listings, err := r.ListCriteria(ctx, env)
	if err != nil {
		return fmt.Errorf("%s: %w", meta.Name, err)
	}

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("FRIENDLY NAME", "CONSTRAINTS")
	for _, l := range listings {
		table.AddRow(l.Name, l.Constraints)
	}
	fmt.Fprintf(w, "%s (%s, %d criteria)\n", console.Header(meta.Name), source, len(listings))
	fmt.Fprintln(w, table)
	fmt.Fprintln(w)
	return nil
}

// Package app wires the orchestrator's components together: configuration,
// thread management, the appdata store, the module manager and its
// watchdog, the task manager, and the remote transport. It is the
// composition root both cmd/labrigd and tests that need a full stack
// import.
package app

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/apphome"
	"github.com/labrig-project/labrig/pkg/config"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/mainloop"
	"github.com/labrig-project/labrig/pkg/modmanager"
	"github.com/labrig-project/labrig/pkg/module"
	"github.com/labrig-project/labrig/pkg/remote"
	"github.com/labrig-project/labrig/pkg/task"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

// RestartExitCode is returned to the shell by main() when a module
// requests the process restart rather than merely stop.
const RestartExitCode = 42

// Application owns the full component graph for one orchestrator process.
type Application struct {
	Config   *config.Configuration
	Threads  *threadmgr.Manager
	Store    *appdata.Store
	Registry *module.Registry
	Modules  *modmanager.Manager
	Tasks    *task.Manager
	Main     *mainloop.Loop

	restart bool
	tunnels []*remote.SSHTunnel
}

// New constructs an Application around a caller-supplied module registry
// (the set of module classes this build knows how to instantiate).
func New(registry *module.Registry) *Application {
	threads := threadmgr.New()
	a := &Application{
		Config:   config.New(),
		Threads:  threads,
		Registry: registry,
		Modules:  modmanager.New(),
		Main:     mainloop.New(64),
	}
	a.Tasks = task.NewManager(threads)
	return a
}

// RequestRestart marks the process to exit with RestartExitCode instead of
// 0 once Run returns, the orchestrator's way of asking its supervisor
// (systemd, a parent shell, whatever launched it) to start it fresh.
func (a *Application) RequestRestart() { a.restart = true }

// ExitCode reports what the process should exit with after Run returns.
func (a *Application) ExitCode() int {
	if a.restart {
		return RestartExitCode
	}
	return 0
}

// Start loads configuration, stands up the appdata store and module
// manager, opens the remote transport if configured, and activates every
// module named in startup_modules. It does not block; call Run afterward
// to enter the process event loop.
func (a *Application) Start(configPath string) error {
	if err := apphome.EnsureLayout(); err != nil {
		return fmt.Errorf("preparing application directories: %w", err)
	}
	if err := a.Config.Load(configPath); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tree := a.Config.Tree()
	if tree.Global.WatchConfigFile {
		if err := a.Config.Watch(); err != nil {
			logging.Logger.Warnf("config watch not started: %v", err)
		}
	}
	dataRoot := apphome.DefaultDataRoot()
	if tree.Global.DefaultDataDir != nil {
		dataRoot = *tree.Global.DefaultDataDir
	}
	if tree.Global.DailyDataDirs {
		dataRoot = apphome.DailyDataDir(dataRoot, time.Now())
	}
	a.Store = appdata.New(dataRoot)

	if err := a.buildModules(config.BaseHardware, tree.Hardware); err != nil {
		return err
	}
	if err := a.buildModules(config.BaseLogic, tree.Logic); err != nil {
		return err
	}
	if err := a.buildModules(config.BaseGui, tree.Gui); err != nil {
		return err
	}

	a.Modules.StartWatchdog(modmanager.DefaultWatchdogInterval)

	if tree.Global.RemoteModulesServer != nil {
		rs := tree.Global.RemoteModulesServer
		go func() {
			source := &remoteSource{modules: a.Modules, cfg: a.Config, threads: a.Threads, tasks: a.Tasks}
			if err := remote.Listen(rs.Address, rs.Port, rs.CertFile, rs.KeyFile, source); err != nil {
				logging.Logger.Errorf("remote transport stopped: %v", err)
			}
		}()
	}

	for _, name := range tree.Global.StartupModules {
		if err := a.Modules.Activate(name); err != nil {
			logging.WithModule(name).Errorf("startup activation failed: %v", err)
		}
	}

	return nil
}

// buildModules constructs and registers a LocalHandle or RemoteHandle for
// every module.Config in section, skipping (and logging) ones whose class
// is not registered rather than aborting startup outright.
func (a *Application) buildModules(base config.Base, section map[string]config.ModuleConfig) error {
	for name, mc := range section {
		desc := module.Descriptor{
			Class:   mc.Class,
			Name:    name,
			Base:    module.Base(base),
			Options: mc.Options,
			Connect: mc.Connect,
		}
		if mc.IsRemote() {
			certFile, keyFile := mc.CertFile, mc.KeyFile
			nativeName := mc.NativeModuleName
			if nativeName == "" {
				nativeName = name
			}
			address, port := mc.Address, mc.Port
			if mc.UsesSSHTunnel() {
				tunnel, err := remote.DialSSHTunnel(mc.SSHAddress, mc.SSHUser, mc.SSHKeyFile, fmt.Sprintf("%s:%d", mc.Address, mc.Port))
				if err != nil {
					return fmt.Errorf("opening ssh tunnel for module %q: %w", name, err)
				}
				a.tunnels = append(a.tunnels, tunnel)
				host, portStr, err := net.SplitHostPort(tunnel.LocalAddr())
				if err != nil {
					return fmt.Errorf("parsing ssh tunnel local address for module %q: %w", name, err)
				}
				address = host
				port, _ = strconv.Atoi(portStr)
			}
			handle := module.NewRemoteHandle(desc, nativeName, address, port, certFile, keyFile, remote.NewClient())
			if err := a.Modules.Add(handle, false); err != nil {
				return fmt.Errorf("registering remote module %q: %w", name, err)
			}
			continue
		}

		handle, err := module.NewLocalHandle(desc, a.Registry, a.Modules, a.Threads, a.Store, a.Main)
		if err != nil {
			logging.WithModule(name).Warnf("skipping module: %v", err)
			continue
		}
		if err := a.Modules.Add(handle, false); err != nil {
			return fmt.Errorf("registering module %q: %w", name, err)
		}
	}
	return nil
}

// Run blocks, servicing main-thread redirections until a shutdown signal
// arrives or the main loop is stopped. On a signal it tears the component
// graph down in reverse startup order via Shutdown; if the main loop was
// stopped directly, Run returns without calling Shutdown.
func (a *Application) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		a.Main.Run()
		close(done)
	}()

	select {
	case <-sigCh:
	case <-done:
		return nil
	}

	a.Shutdown()
	return nil
}

// Shutdown deactivates every module, drains the task manager's threads,
// and stops the main loop. Safe to call more than once.
func (a *Application) Shutdown() {
	a.Config.StopWatch()
	a.Modules.StopWatchdog()
	a.Modules.DeactivateAll()
	a.Tasks.Terminate(5 * time.Second)
	a.Threads.JoinAll(5 * time.Second)
	for _, t := range a.tunnels {
		t.Close()
	}
	a.tunnels = nil
	a.Main.Stop()
}

// remoteSource adapts Modules+Config+Threads+Tasks to remote.Source
// without pkg/remote depending on any of those packages directly.
type remoteSource struct {
	modules *modmanager.Manager
	cfg     *config.Configuration
	threads *threadmgr.Manager
	tasks   *task.Manager
}

func (s *remoteSource) Handle(name string) (module.Handle, bool) {
	return s.modules.Handle(name)
}

func (s *remoteSource) AllowRemote(name string) bool {
	for _, base := range []config.Base{config.BaseHardware, config.BaseLogic, config.BaseGui} {
		if mc, ok := s.cfg.ModuleConfig(base, name); ok {
			return mc.AllowRemote
		}
	}
	return false
}

func (s *remoteSource) Names() []string {
	return s.modules.Names()
}

func (s *remoteSource) ThreadNames() []string { return s.threads.Names() }

func (s *remoteSource) ThreadRunning(name string) bool {
	t := s.threads.Get(name)
	return t != nil && t.IsRunning()
}

func (s *remoteSource) RunTask(name string) error      { return s.tasks.Run(name) }
func (s *remoteSource) InterruptTask(name string) error { return s.tasks.Interrupt(name) }

func (s *remoteSource) TaskStatus(name string) (string, error) {
	state, err := s.tasks.State(name)
	if err != nil {
		return "", err
	}
	return state.String(), nil
}

func (s *remoteSource) ConfigYAML() (string, error) { return s.cfg.YAML() }
func (s *remoteSource) ValidateConfig() error       { return s.cfg.Validate() }

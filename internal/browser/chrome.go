package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// cdpReadyTimeout bounds how long we wait for Chrome's DevTools port to
	// start accepting connections after launch.
	cdpReadyTimeout = 10 * time.Second

	// cdpPollInterval is the delay between DevTools readiness probes.
	cdpPollInterval = 500 * time.Millisecond

	// terminateGrace is how long a Chrome process gets to exit after an
	// interrupt before it is killed.
	terminateGrace = 5 * time.Second
)

// chromeCandidates are well-known Chrome/Chromium install locations probed in
// order when no explicit path is configured.
var chromeCandidates = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/opt/google/chrome/chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// Chrome launches and tears down browser processes with remote debugging
// enabled. One Chrome instance is launched per adapter call and always torn
// down afterwards, success or failure.
type Chrome struct {
	// execPath overrides executable discovery when non-empty.
	execPath string

	// userDataBase is the directory under which throwaway profile dirs are
	// created, one per launch so sessions never clash.
	userDataBase string
}

// NewChrome creates a Chrome launcher. execPath may be empty, in which case
// well-known install locations and $PATH are probed at launch time.
func NewChrome(execPath string) *Chrome {
	return &Chrome{execPath: execPath, userDataBase: os.TempDir()}
}

// Instance is one running Chrome process with an open DevTools port.
type Instance struct {
	cmd  *exec.Cmd
	port int
}

// CDPURL returns the DevTools endpoint navigators attach to.
func (i *Instance) CDPURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", i.port)
}

// findExecutable locates a Chrome/Chromium binary.
func (c *Chrome) findExecutable() (string, error) {
	if c.execPath != "" {
		if _, err := os.Stat(c.execPath); err != nil {
			return "", fmt.Errorf("browser: configured chrome path %q: %w", c.execPath, err)
		}
		return c.execPath, nil
	}
	for _, candidate := range chromeCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("browser: no chrome/chromium executable found")
}

// Check reports whether a Chrome executable can be resolved. Used as a
// readiness probe.
func (c *Chrome) Check(_ context.Context) error {
	_, err := c.findExecutable()
	return err
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("browser: find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Launch starts a Chrome process with remote debugging on a fresh port and
// waits until the DevTools endpoint accepts connections. The caller must
// call [Chrome.Teardown] on the returned instance in all paths.
func (c *Chrome) Launch(ctx context.Context) (*Instance, error) {
	execPath, err := c.findExecutable()
	if err != nil {
		return nil, err
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	userDataDir := filepath.Join(c.userDataBase, fmt.Sprintf("bolke_chrome_%d", port))
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
	}

	slog.Info("launching chrome", "path", execPath, "cdp_port", port)
	cmd := exec.Command(execPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	inst := &Instance{cmd: cmd, port: port}

	// Poll until the DevTools socket accepts connections.
	deadline := time.Now().Add(cdpReadyTimeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			c.Teardown(inst)
			return nil, fmt.Errorf("browser: launch cancelled: %w", ctx.Err())
		case <-time.After(cdpPollInterval):
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			slog.Debug("chrome devtools ready", "cdp_port", port)
			return inst, nil
		}
	}

	c.Teardown(inst)
	return nil, fmt.Errorf("browser: chrome did not open devtools port %d within %s", port, cdpReadyTimeout)
}

// Teardown terminates the Chrome process: interrupt first, kill if it does
// not exit within the grace period. Safe to call with an already-dead
// process.
func (c *Chrome) Teardown(inst *Instance) {
	if inst == nil || inst.cmd == nil || inst.cmd.Process == nil {
		return
	}

	_ = inst.cmd.Process.Signal(os.Interrupt)

	done := make(chan error, 1)
	go func() { done <- inst.cmd.Wait() }()

	select {
	case <-done:
		slog.Debug("chrome process exited", "cdp_port", inst.port)
	case <-time.After(terminateGrace):
		slog.Warn("chrome did not exit in time, killing", "cdp_port", inst.port)
		_ = inst.cmd.Process.Kill()
		<-done
	}
}

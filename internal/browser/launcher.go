package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultPort is the remote debugging port used when none is given.
const DefaultPort = 9222

// LaunchOptions controls how a browser process is spawned.
type LaunchOptions struct {
	Port        int
	Headless    bool
	Stealth     bool // forces Headless off
	UserDataDir string
	UserAgent   string
	ExtraArgs   []string
}

// Instance is a browser process owned by a Launcher.
type Instance struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	PID         int       `json:"pid"`
	Executable  string    `json:"executable"`
	Headless    bool      `json:"headless"`
	Stealth     bool      `json:"stealth"`
	UserDataDir string    `json:"user_data_dir"`
	Args        []string  `json:"args"`
	StartedAt   time.Time `json:"started_at"`

	cmd  *exec.Cmd
	done chan struct{}
}

// Alive reports whether the process has not exited yet.
func (i *Instance) Alive() bool {
	if i.done == nil {
		return false
	}
	select {
	case <-i.done:
		return false
	default:
		return true
	}
}

// Done is closed when the process exits.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Launcher spawns Chromium-family browsers with a remote debugging endpoint
// and tracks them by port.
type Launcher struct {
	host       string
	executable string
	retry      RetryPolicy
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	instances map[int]*Instance
	inflight  singleflight.Group
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithExecutable pins the browser binary, skipping discovery.
func WithExecutable(path string) LauncherOption {
	return func(l *Launcher) { l.executable = path }
}

// WithLaunchRetry sets the readiness polling policy.
func WithLaunchRetry(p RetryPolicy) LauncherOption {
	return func(l *Launcher) { l.retry = p }
}

// WithLauncherHTTPClient overrides the client used to poll /json/list.
func WithLauncherHTTPClient(c *http.Client) LauncherOption {
	return func(l *Launcher) { l.httpClient = c }
}

// WithLauncherLogger sets the logger.
func WithLauncherLogger(logger *zap.Logger) LauncherOption {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLauncher creates a launcher for browsers on the given host.
func NewLauncher(host string, opts ...LauncherOption) *Launcher {
	if host == "" {
		host = "127.0.0.1"
	}
	l := &Launcher{
		host:      host,
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
		instances: make(map[int]*Instance),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Host returns the host browsers are reached on.
func (l *Launcher) Host() string { return l.host }

// Launch spawns a browser on opts.Port, or returns the instance already
// tracked there. It blocks until the DevTools target list answers.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Stealth {
		opts.Headless = false
	}

	v, err, _ := l.inflight.Do(strconv.Itoa(opts.Port), func() (interface{}, error) {
		return l.launch(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

func (l *Launcher) launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	l.mu.RLock()
	existing, ok := l.instances[opts.Port]
	l.mu.RUnlock()
	if ok {
		if existing.Alive() {
			l.logger.Info("browser already running", zap.Int("port", opts.Port), zap.Int("pid", existing.PID))
			return existing, nil
		}
		l.forget(opts.Port, existing)
	}

	bin, err := ResolveExecutable(l.executable)
	if err != nil {
		return nil, err
	}

	if opts.UserDataDir == "" {
		opts.UserDataDir = DefaultUserDataDir(opts.Port)
	}
	args := BuildArgs(opts)

	l.logger.Info("launching browser",
		zap.String("executable", bin),
		zap.Int("port", opts.Port),
		zap.Bool("headless", opts.Headless),
		zap.Bool("stealth", opts.Stealth),
		zap.String("user_data_dir", opts.UserDataDir))

	// Not tied to ctx: the browser outlives the request that launched it.
	cmd := exec.Command(bin, args...)
	output := &zapio.Writer{Log: l.logger.With(zap.Int("port", opts.Port)), Level: zapcore.DebugLevel}
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	inst := &Instance{
		Host:        l.host,
		Port:        opts.Port,
		PID:         cmd.Process.Pid,
		Executable:  bin,
		Headless:    opts.Headless,
		Stealth:     opts.Stealth,
		UserDataDir: opts.UserDataDir,
		Args:        args,
		StartedAt:   time.Now(),
		cmd:         cmd,
		done:        make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		_ = output.Close()
		close(inst.done)
	}()

	if err := l.waitReady(ctx, inst); err != nil {
		l.terminate(inst)
		return nil, err
	}

	l.mu.Lock()
	l.instances[opts.Port] = inst
	l.mu.Unlock()

	l.logger.Info("browser ready", zap.Int("port", inst.Port), zap.Int("pid", inst.PID))
	return inst, nil
}

// waitReady polls the DevTools target list until it answers.
func (l *Launcher) waitReady(ctx context.Context, inst *Instance) error {
	dt := NewDevTools(inst.Host, inst.Port, l.httpClient)
	attempts, err := l.retry.Do(ctx, func() error {
		select {
		case <-inst.done:
			return permanent(fmt.Errorf("browser process %d exited during startup", inst.PID))
		default:
		}
		targets, err := dt.List(ctx)
		if err != nil {
			l.logger.Debug("devtools not ready", zap.Int("port", inst.Port), zap.Error(err))
			return err
		}
		l.logger.Debug("available targets", zap.Int("count", len(targets)))
		return nil
	})
	if err != nil {
		return &ConnectionError{Op: "launch", Host: inst.Host, Port: inst.Port, Attempts: attempts, Err: err}
	}
	return nil
}

// Kill terminates the browser on port and drops its bookkeeping.
func (l *Launcher) Kill(port int) error {
	l.mu.Lock()
	inst, ok := l.instances[port]
	if ok {
		delete(l.instances, port)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("kill port %d: %w", port, ErrInstanceNotFound)
	}

	l.terminate(inst)
	l.logger.Info("browser killed", zap.Int("port", port), zap.Int("pid", inst.PID))
	return nil
}

// KillAll terminates every tracked browser.
func (l *Launcher) KillAll(ctx context.Context) error {
	instances := l.Instances()
	g, _ := errgroup.WithContext(ctx)
	errs := make([]error, len(instances))
	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			errs[i] = l.Kill(inst.Port)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Get returns the instance on port.
func (l *Launcher) Get(port int) (*Instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.instances[port]
	return inst, ok
}

// Instances returns tracked instances ordered by port.
func (l *Launcher) Instances() []*Instance {
	l.mu.RLock()
	out := make([]*Instance, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, inst)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func (l *Launcher) forget(port int, inst *Instance) {
	l.mu.Lock()
	if l.instances[port] == inst {
		delete(l.instances, port)
	}
	l.mu.Unlock()
}

func (l *Launcher) terminate(inst *Instance) {
	if inst.cmd == nil || inst.cmd.Process == nil {
		return
	}
	if !inst.Alive() {
		return
	}
	if err := inst.cmd.Process.Kill(); err != nil {
		l.logger.Warn("kill browser process", zap.Int("pid", inst.PID), zap.Error(err))
	}
	select {
	case <-inst.done:
	case <-time.After(5 * time.Second):
		l.logger.Warn("browser process did not exit", zap.Int("pid", inst.PID))
	}
}

// DefaultUserDataDir is the isolated profile directory for port.
func DefaultUserDataDir(port int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("chrome-remote-%d", port))
}

// BuildArgs returns the command line for opts. Base, stealth and extra
// arguments are merged in that order; a later flag whose name is already
// present is dropped.
func BuildArgs(opts LaunchOptions) []string {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	headless := opts.Headless && !opts.Stealth
	dataDir := opts.UserDataDir
	if dataDir == "" {
		dataDir = DefaultUserDataDir(port)
	}

	base := []string{
		flagArg(flags.RemoteDebuggingPort, strconv.Itoa(port)),
		flagArg(flags.UserDataDir, dataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-blink-features=AutomationControlled",
		"--disable-features=TranslateUI",
		"--disable-popup-blocking",
	}
	if headless {
		base = append(base, flagArg(flags.Headless, "new"))
	}

	var stealthArgs []string
	if opts.Stealth {
		stealthArgs = StealthArgs(opts.UserAgent)
	}

	seen := make(map[string]bool)
	args := make([]string, 0, len(base)+len(stealthArgs)+len(opts.ExtraArgs))
	for _, group := range [][]string{base, stealthArgs, opts.ExtraArgs} {
		for _, arg := range group {
			name := flagName(arg)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			args = append(args, arg)
		}
	}
	return args
}

func flagArg(f flags.Flag, value string) string {
	return "--" + string(f) + "=" + value
}

func flagName(arg string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(arg), "=")
	return string(flags.Flag(name).NormalizeFlag())
}

// knownExecutables lists well-known install locations in lookup order.
func knownExecutables() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
		}
	}
}

// ResolveExecutable finds a browser binary: the explicit path, then
// well-known install paths, then rod's lookup, then PATH.
func ResolveExecutable(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrExecutableNotFound, explicit, err)
		}
		return explicit, nil
	}
	for _, p := range knownExecutables() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	if p, ok := launcher.LookPath(); ok {
		return p, nil
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrExecutableNotFound
}

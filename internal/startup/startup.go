package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"raw-organizer/internal/logging"
	"raw-organizer/internal/memory"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// PrintBanner prints the program banner, build and system information.
func PrintBanner() {
	printBanner()
	logSystemInfo()
}

// PrepareDirectories creates the cache and output directories and checks
// that they, and the ledger's directory, are writable.
func PrepareDirectories(c *Config) error {
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(c.Dir, "source", false); err != nil {
		return fmt.Errorf("source directory error: %w", err)
	}

	dirs := []struct {
		path, name string
	}{
		{c.CacheDir, "cache"},
		{c.OutputDir, "output"},
	}
	if !c.NoLedger {
		dirs = append(dirs, struct{ path, name string }{filepath.Dir(c.Database), "ledger"})
	}

	for _, d := range dirs {
		if err := ensureDirectory(d.path, d.name, true); err != nil {
			return fmt.Errorf("%s directory error: %w", d.name, err)
		}
		if err := testWriteAccess(d.path); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", d.name, err)
		}
		logging.Info("  [OK] %-7s %s", d.name, d.path)
	}
	logging.Info("")
	return nil
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  Memory limit:    %s (GOMEMLIMIT)", memory.FormatBytes(result.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Memory limit:    %s (%.0f%% of %s container limit)",
			memory.FormatBytes(result.GoMemLimit), result.Ratio*100, memory.FormatBytes(result.ContainerLimit))
	default:
		logging.Info("  Memory limit:    not configured")
	}
}

// LogLedgerInit logs run ledger initialization
func LogLedgerInit(path string, duration time.Duration) {
	logging.Info("  [OK] Run ledger %s opened in %v", path, duration)
}

// LogVipsInit logs whether libvips is used for rendering.
func LogVipsInit(requested, available bool) {
	switch {
	case !requested:
		logging.Debug("  libvips not requested, using embedded previews")
	case available:
		logging.Info("  [OK] libvips initialized")
	default:
		logging.Warn("  libvips unavailable, falling back to embedded previews")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes, err
}

// LogMetricsServerStarted logs the metrics listener and its routes.
func LogMetricsServerStarted(addr string, router *mux.Router) {
	logging.Info("  [OK] Metrics listening on %s", addr)

	if !logging.IsDebugEnabled() {
		return
	}
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	for _, route := range routes {
		logging.Debug("    %-6s %s", route.Method, route.Path)
	}
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Debug("  [OK] %s", step)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    ____  ___ _       __   ____                        _
   / __ \/   | |     / /  / __ \_________ _____ _____ (_)___  ___  _____
  / /_/ / /| | | /| / /  / / / / ___/ __ '/ __ '/ __ \/ /_  / / _ \/ ___/
 / _, _/ ___ | |/ |/ /  / /_/ / /  / /_/ / /_/ / / / / / / /_/  __/ /
/_/ |_/_/  |_|__/|__/   \____/_/   \__, /\__,_/_/ /_/_/ /___/\___/_/
                                  /____/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string, create bool) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) && create {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if name == "source" && logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			fileCount, dirCount := 0, 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

package installer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Distribution names whose importable module differs from the package name.
var importNameOverrides = map[string]string{
	"pillow":          "PIL",
	"scikit-learn":    "sklearn",
	"opencv-python":   "cv2",
	"beautifulsoup4":  "bs4",
	"pyyaml":          "yaml",
	"python-dateutil": "dateutil",
	"msgpack-python":  "msgpack",
}

// Result reports one installation attempt. Error carries the human-readable
// failure description when Success is false. Verified reports whether the
// installed package imported cleanly afterwards.
type Result struct {
	Success  bool
	Spec     string
	Output   string
	Error    string
	Verified bool
}

// Executor installs Python packages through pip and verifies them by
// importing the installed module.
type Executor struct {
	runner         Runner
	logger         *slog.Logger
	pythonCommand  string
	installTimeout time.Duration
	verifyTimeout  time.Duration
	lookupTimeout  time.Duration
}

// Options tunes an Executor. Zero values fall back to defaults.
type Options struct {
	Runner         Runner
	PythonCommand  string
	InstallTimeout time.Duration
	VerifyTimeout  time.Duration
	LookupTimeout  time.Duration
	MaxOutputBytes int
}

// NewExecutor builds an Executor from options.
func NewExecutor(logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(opts.MaxOutputBytes)
	}
	python := opts.PythonCommand
	if python == "" {
		python = "python3"
	}
	installTimeout := opts.InstallTimeout
	if installTimeout <= 0 {
		installTimeout = 300 * time.Second
	}
	verifyTimeout := opts.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = 20 * time.Second
	}
	lookupTimeout := opts.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = 30 * time.Second
	}
	return &Executor{
		runner:         runner,
		logger:         logger.With("component", "installer"),
		pythonCommand:  python,
		installTimeout: installTimeout,
		verifyTimeout:  verifyTimeout,
		lookupTimeout:  lookupTimeout,
	}
}

// BuildSpec renders the pip requirement specifier for a package and version.
// "latest" and empty versions produce a bare name.
func BuildSpec(name, version string) string {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if version == "" || strings.EqualFold(version, "latest") {
		return name
	}
	return fmt.Sprintf("%s==%s", name, version)
}

// ImportName maps a distribution name to the module imported to verify it.
func ImportName(packageName string) string {
	if mapped, ok := importNameOverrides[strings.ToLower(strings.TrimSpace(packageName))]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.TrimSpace(packageName), "-", "_")
}

// Execute installs one package. All failure modes are reported through
// Result.Error; the returned Result is always usable.
func (e *Executor) Execute(ctx context.Context, packageName, version string) Result {
	spec := BuildSpec(packageName, version)
	result := Result{Spec: spec}

	if err := ValidatePackageName(packageName); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := ValidateVersion(version); err != nil {
		result.Error = err.Error()
		return result
	}

	e.logger.Info("installing package", "spec", spec, "timeout", e.installTimeout)

	installCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()

	out, err := e.runner.Run(installCtx, e.pythonCommand, "-m", "pip", "install", spec, "--upgrade")
	result.Output = combineOutput(out)
	if installCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("installation timed out after %s", e.installTimeout)
		return result
	}
	if err != nil {
		result.Error = fmt.Sprintf("pip could not run: %v", err)
		return result
	}
	if out.ExitCode != 0 {
		result.Error = installFailureMessage(spec, out)
		return result
	}

	result.Success = true
	result.Verified = e.verify(ctx, packageName)
	if !result.Verified {
		e.logger.Warn("installed package failed import verification", "package", packageName)
	}
	return result
}

func (e *Executor) verify(ctx context.Context, packageName string) bool {
	verifyCtx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	defer cancel()

	module := ImportName(packageName)
	out, err := e.runner.Run(verifyCtx, e.pythonCommand, "-c", fmt.Sprintf("import %s", module))
	if err != nil {
		return false
	}
	return out.ExitCode == 0
}

// AvailableVersions asks pip for published versions of a package. Lookup
// failures return an empty slice; this is advisory output only.
func (e *Executor) AvailableVersions(ctx context.Context, packageName string, limit int) []string {
	if err := ValidatePackageName(packageName); err != nil {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	out, err := e.runner.Run(lookupCtx, e.pythonCommand, "-m", "pip", "index", "versions", packageName)
	if err != nil || out.ExitCode != 0 {
		return nil
	}
	return parseAvailableVersions(out.Stdout, limit)
}

func parseAvailableVersions(stdout string, limit int) []string {
	const marker = "Available versions:"
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, marker) {
			continue
		}
		raw := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, marker)), ",")
		versions := make([]string, 0, limit)
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			versions = append(versions, v)
			if len(versions) == limit {
				break
			}
		}
		return versions
	}
	return nil
}

func installFailureMessage(spec string, out RunOutput) string {
	detail := strings.TrimSpace(out.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(out.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("pip install %s exited with code %d", spec, out.ExitCode)
	}
	return fmt.Sprintf("pip install %s failed: %s", spec, lastLine(detail))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func combineOutput(out RunOutput) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(out.Stdout) != "" {
		parts = append(parts, strings.TrimSpace(out.Stdout))
	}
	if strings.TrimSpace(out.Stderr) != "" {
		parts = append(parts, strings.TrimSpace(out.Stderr))
	}
	return strings.Join(parts, "\n")
}

package testrun

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Runner executes one suite inside a prepared working directory and
// returns the parsed result. Run errors describe runner failures, not
// test failures; failing tests come back inside the RunResult.
type Runner interface {
	Run(ctx context.Context, suite *Suite, workDir string) (*RunResult, error)
}

// GoTestRunner runs suites through the Go toolchain. Unit and
// integration suites go through "go test -json -cover"; performance
// suites run benchmarks once; security suites run go vet as a
// lightweight static pass.
type GoTestRunner struct{}

var _ Runner = (*GoTestRunner)(nil)

// NewGoTestRunner creates a toolchain-backed runner.
func NewGoTestRunner() *GoTestRunner {
	return &GoTestRunner{}
}

// Run dispatches on the suite type. The caller is responsible for the
// hard timeout via ctx.
func (r *GoTestRunner) Run(ctx context.Context, suite *Suite, workDir string) (*RunResult, error) {
	switch suite.Type {
	case SuiteTypePerformance:
		return r.runBenchmarks(ctx, suite, workDir)
	case SuiteTypeSecurity:
		return r.runVet(ctx, suite, workDir)
	default:
		return r.runTests(ctx, suite, workDir)
	}
}

// env injects the environment-specific config so isolated and
// integration runs cannot collide with local state: tests see which
// environment they run in and get a distinct cache namespace.
func (r *GoTestRunner) env(suite *Suite) []string {
	return append(os.Environ(),
		"CREWMESH_TEST_ENV="+string(suite.Environment),
		"CREWMESH_CACHE_NS=crewmesh-"+string(suite.Environment),
	)
}

func (r *GoTestRunner) targets(suite *Suite) []string {
	if len(suite.TestFiles) == 0 {
		return []string{"./..."}
	}
	return suite.TestFiles
}

func (r *GoTestRunner) runTests(ctx context.Context, suite *Suite, workDir string) (*RunResult, error) {
	args := append([]string{"test", "-json", "-cover"}, r.targets(suite)...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = workDir
	cmd.Env = r.env(suite)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := parseTestJSON(stdout.Bytes())
	result.Output = truncateOutput(stdout.String())

	if ctx.Err() == context.DeadlineExceeded {
		result.Errors = append(result.Errors, "run timed out")
		return result, nil
	}
	if runErr != nil && result.Failed == 0 && result.Passed == 0 {
		// The toolchain failed before any test ran (compile error etc.).
		result.Errors = append(result.Errors, strings.TrimSpace(stderr.String()))
		return result, fmt.Errorf("test runner failed: %w", runErr)
	}
	return result, nil
}

func (r *GoTestRunner) runBenchmarks(ctx context.Context, suite *Suite, workDir string) (*RunResult, error) {
	args := append([]string{"test", "-run", "^$", "-bench", ".", "-benchtime", "1x"}, r.targets(suite)...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = workDir
	cmd.Env = r.env(suite)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	result := &RunResult{Output: truncateOutput(output.String())}
	for _, line := range strings.Split(output.String(), "\n") {
		if strings.HasPrefix(line, "Benchmark") {
			result.Passed++
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		result.Errors = append(result.Errors, "run timed out")
	} else if runErr != nil {
		result.Failed++
		result.Errors = append(result.Errors, strings.TrimSpace(output.String()))
	}
	return result, nil
}

func (r *GoTestRunner) runVet(ctx context.Context, suite *Suite, workDir string) (*RunResult, error) {
	args := append([]string{"vet"}, r.targets(suite)...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = workDir
	cmd.Env = r.env(suite)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	result := &RunResult{Output: truncateOutput(output.String())}
	if ctx.Err() == context.DeadlineExceeded {
		result.Errors = append(result.Errors, "run timed out")
	} else if runErr != nil {
		result.Failed = 1
		result.Errors = append(result.Errors, strings.TrimSpace(output.String()))
	} else {
		result.Passed = 1
	}
	return result, nil
}

// testEvent is one line of go test -json output.
type testEvent struct {
	Action  string `json:"Action"`
	Test    string `json:"Test"`
	Package string `json:"Package"`
	Output  string `json:"Output"`
}

var coverageRe = regexp.MustCompile(`coverage: ([\d.]+)% of statements`)

func parseTestJSON(data []byte) *RunResult {
	result := &RunResult{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var event testEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Test != "" {
			switch event.Action {
			case "pass":
				result.Passed++
			case "fail":
				result.Failed++
			case "skip":
				result.Skipped++
			}
		}
		if event.Output != "" {
			if m := coverageRe.FindStringSubmatch(event.Output); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct > result.Coverage {
					result.Coverage = pct
				}
			}
		}
	}
	return result
}

const maxOutputBytes = 64 * 1024

func truncateOutput(output string) string {
	if len(output) <= maxOutputBytes {
		return output
	}
	return output[:maxOutputBytes] + "\n... output truncated"
}

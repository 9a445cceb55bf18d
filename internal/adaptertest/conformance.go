// Package adaptertest provides vendor-agnostic conformance testing for train adapters.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/train-control/tcc/internal/adapter"
)

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for an adapter.
// newTrain must return a fresh, connected train on every call.
func RunConformance(t *testing.T, newTrain func() adapter.ITrain) {
	startTime := time.Now()

	report := &ConformanceReport{
		AdapterName:   newTrain().Name(),
		OverallPassed: true,
	}

	runDriveTests(newTrain, report)
	runSteeringTests(newTrain, report)
	runListenerTests(newTrain, report)
	runDisconnectTests(newTrain, report)
	runCancellationTests(newTrain, report)

	report.Duration = time.Since(startTime)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Adapter conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

func runDriveTests(newTrain func() adapter.ITrain, report *ConformanceReport) {
	ctx := context.Background()

	for _, level := range []adapter.SpeedLevel{adapter.SpeedStop, adapter.SpeedMin, adapter.SpeedMax} {
		train := newTrain()
		result := ConformanceResult{
			TestName: fmt.Sprintf("DriveAt_%s", level),
			Details:  map[string]interface{}{"speed": level.String()},
		}
		start := time.Now()
		err := train.DriveAt(ctx, level, adapter.DirectionForward, true)
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = fmt.Sprintf("DriveAt(%s) failed: %v", level, err)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}

	train := newTrain()
	result := ConformanceResult{TestName: "DriveAt_DirectionReported", Details: map[string]interface{}{}}
	start := time.Now()
	err := train.DriveAt(ctx, adapter.SpeedMin, adapter.DirectionBackward, true)
	result.Duration = time.Since(start)
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("DriveAt backward failed: %v", err)
	case train.Direction() != adapter.DirectionBackward:
		result.Error = fmt.Sprintf("Direction() = %s after driving backward", train.Direction())
	default:
		result.Passed = true
	}
	report.addResult(result)
}

func runSteeringTests(newTrain func() adapter.ITrain, report *ConformanceReport) {
	train := newTrain()
	ctx := context.Background()

	result := ConformanceResult{TestName: "SetNextSteering_AllDecisions", Details: map[string]interface{}{}}
	start := time.Now()
	for _, d := range []adapter.Steering{adapter.SteeringLeft, adapter.SteeringRight, adapter.SteeringStraight} {
		if err := train.SetNextSteering(ctx, d); err != nil {
			result.Error = fmt.Sprintf("SetNextSteering(%s) failed: %v", d, err)
			break
		}
	}
	result.Duration = time.Since(start)
	result.Passed = result.Error == ""
	report.addResult(result)

	result = ConformanceResult{TestName: "SetSnapCommandExecution_Idempotent", Details: map[string]interface{}{}}
	start = time.Now()
	err1 := train.SetSnapCommandExecution(ctx, false)
	err2 := train.SetSnapCommandExecution(ctx, false)
	result.Duration = time.Since(start)
	if err1 != nil || err2 != nil {
		result.Error = fmt.Sprintf("SetSnapCommandExecution failed: %v / %v", err1, err2)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func runListenerTests(newTrain func() adapter.ITrain, report *ConformanceReport) {
	train := newTrain()

	result := ConformanceResult{TestName: "Listeners_RegisterRemove", Details: map[string]interface{}{}}
	start := time.Now()
	removeColor := train.OnColorChanged(func(adapter.ColorEvent) {})
	removeSplit := train.OnSplitDecision(func(adapter.SplitEvent) {})
	if removeColor == nil || removeSplit == nil {
		result.Error = "listener registration returned nil remove func"
	} else {
		removeColor()
		removeSplit()
		// A second removal must be harmless.
		removeColor()
		removeSplit()
		result.Passed = true
	}
	result.Duration = time.Since(start)
	report.addResult(result)
}

func runDisconnectTests(newTrain func() adapter.ITrain, report *ConformanceReport) {
	train := newTrain()
	ctx := context.Background()

	result := ConformanceResult{TestName: "Disconnect_MapsToUnavailable", Details: map[string]interface{}{}}
	start := time.Now()
	if err := train.Disconnect(ctx); err != nil {
		result.Error = fmt.Sprintf("Disconnect failed: %v", err)
	} else if train.Connected() {
		result.Error = "Connected() still true after Disconnect"
	} else {
		err := train.DriveAt(ctx, adapter.SpeedMin, adapter.DirectionForward, true)
		normalized := adapter.NormalizeVendorErrorWithVendor(err, nil, "intelino")
		if !errors.Is(normalized, adapter.ErrUnavailable) {
			result.Error = fmt.Sprintf("DriveAt after Disconnect: want UNAVAILABLE, got %v", normalized)
		} else {
			result.Passed = true
		}
	}
	result.Duration = time.Since(start)
	report.addResult(result)
}

func runCancellationTests(newTrain func() adapter.ITrain, report *ConformanceReport) {
	train := newTrain()

	result := ConformanceResult{TestName: "Cancellation_Honored", Details: map[string]interface{}{}}
	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := train.SetNextSteering(ctx, adapter.SteeringLeft)
	result.Duration = time.Since(start)

	if result.Duration > 50*time.Millisecond {
		result.Error = fmt.Sprintf("Operation took too long: %v", result.Duration)
	} else if !errors.Is(err, context.Canceled) {
		result.Error = fmt.Sprintf("want context.Canceled, got %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Helper()
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("ADAPTER CONFORMANCE REPORT")
	t.Logf("Adapter: %s", report.AdapterName)
	t.Logf("Passed: %d/%d  Overall: %s  Duration: %v",
		report.PassedTests, report.TotalTests,
		map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed],
		report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var parts []string
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(parts, ", ")
		}

		t.Logf("%-40s %-6s %-12s %s", result.TestName, status, result.Duration.String(), details)
	}
}

// Package sdrtest runs the test binary as a fake rtl_power so workers can be
// exercised against a real subprocess.
//
// A test package opts in from TestMain:
//
//	func TestMain(m *testing.M) {
//		sdrtest.Main()
//		os.Exit(m.Run())
//	}
package sdrtest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/roman-kulish/radio-sentinel/internal/sdr"
)

// EnvScenario selects the scenario played by the re-executed test binary
const EnvScenario = "RADIO_SENTINEL_FAKE_SAMPLER"

const (
	// SpikeFrequency is the single frequency every scenario line reports
	SpikeFrequency = 100_000_000

	// BaselineLines is the number of steady lines before the spike
	BaselineLines = 151
)

type Scenario string

const (
	// BaselineThenSpike prints BaselineLines lines at 5.0 dB then one at 50.0 dB
	BaselineThenSpike Scenario = "baseline-then-spike"
	// DroppedSamples prints a few readings then the dropped samples marker
	DroppedSamples Scenario = "dropped-samples"
	// Desync prints a dated line that does not parse
	Desync Scenario = "desync"
	// Idle prints the banner and waits to be terminated
	Idle Scenario = "idle"
	// Exit prints the banner and exits straight away
	Exit Scenario = "exit"
	// Stubborn ignores SIGTERM and has to be killed
	Stubborn Scenario = "stubborn"
)

// Main plays the requested scenario and exits when the process was started
// as a fake sampler; otherwise it returns immediately
func Main() {
	scenario := os.Getenv(EnvScenario)
	if scenario == "" {
		return
	}

	play(Scenario(scenario))
	os.Exit(0)
}

// Handler wraps h so that its command starts the test binary playing scenario.
// Parsing is left to h.
func Handler(h sdr.Handler, scenario Scenario) sdr.Handler {
	return &handler{Handler: h, scenario: scenario}
}

type handler struct {
	sdr.Handler
	scenario Scenario
}

func (h *handler) Cmd(ctx context.Context) *exec.Cmd {
	args := append([]string{"-test.run=^$", "--"}, h.Handler.Cmd(ctx).Args[1:]...)

	cmd := exec.CommandContext(ctx, os.Args[0], args...)
	cmd.Env = append(os.Environ(), EnvScenario+"="+string(h.scenario))
	return cmd
}

// Line renders one rtl_power output line with a single reading
func Line(freq int64, power float64) string {
	return fmt.Sprintf("2024-01-02, 10:11:12, %d, %d, 1000.00, 16, %.2f", freq, freq+1000, power)
}

func play(scenario Scenario) {
	if scenario == Stubborn {
		signal.Ignore(syscall.SIGTERM)
	}

	banner()

	switch scenario {
	case BaselineThenSpike:
		for range BaselineLines {
			fmt.Println(Line(SpikeFrequency, 5))
		}
		fmt.Println(Line(SpikeFrequency, 50))

	case DroppedSamples:
		for range 3 {
			fmt.Println(Line(SpikeFrequency, 5))
		}
		fmt.Fprintln(os.Stderr, "Error: dropped samples.")

	case Desync:
		fmt.Println("2024-01-02, 10:11:12, 100000000")

	case Exit:
		return
	}

	time.Sleep(time.Hour) // wait to be terminated
}

func banner() {
	fmt.Fprintln(os.Stderr, "Found 1 device(s):")
	fmt.Fprintln(os.Stderr, "  0:  Realtek, RTL2838UHIDIR, SN: 00000001")
	fmt.Fprintln(os.Stderr, "Using device 0: Generic RTL2832U OEM")
}

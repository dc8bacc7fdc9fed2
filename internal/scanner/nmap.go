// Package scanner builds nmap invocations and parses their textual reports.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/5kyf4ll/molly-project/internal/executor"
	"go.uber.org/zap"
)

// Scan profiles. Each maps to a fixed set of nmap options appended to
// the "-T4" base command.
const (
	ProfileDefault     = "default_scan"
	ProfileOSDetection = "os_detection"
	ProfileFullTCPUDP  = "full_tcp_udp_scan"
	ProfileVulnScript  = "vulnerability_script_scan"
)

// profileOptions maps a profile name to its nmap options
var profileOptions = map[string]string{
	ProfileDefault:     "-sS -sV -O --min-rate 500 --max-rate 1000 --min-rtt-timeout 100ms --max-rtt-timeout 1000ms --initial-rtt-timeout 500ms --open",
	ProfileOSDetection: "-O",
	ProfileFullTCPUDP:  "-sS -sU -p 1-1024 --max-rate 500 --open",
	ProfileVulnScript:  "-sV -sC --script vuln",
}

// Nmap builds and executes nmap commands through a command runner
type Nmap struct {
	runner executor.Runner
	binary string
	logger *zap.Logger
}

// NewNmap creates an Nmap scanner bound to a command runner. An empty
// binary defaults to "nmap" on PATH.
func NewNmap(runner executor.Runner, binary string, logger *zap.Logger) *Nmap {
	if binary == "" {
		binary = "nmap"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Nmap{
		runner: runner,
		binary: binary,
		logger: logger,
	}
}

// BuildCommand constructs the full nmap command line for a target and
// profile. Unknown profiles fall back to a plain SYN+version scan. Ports,
// when supplied, override the profile's port selection.
func (n *Nmap) BuildCommand(target, profile, ports string) string {
	options, ok := profileOptions[profile]
	if !ok {
		options = "-sS -sV"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s -T4 %s", n.binary, options)
	if ports != "" {
		fmt.Fprintf(&b, " -p %s", ports)
	}
	fmt.Fprintf(&b, " %s", target)
	return b.String()
}

// Scan runs an nmap scan against the target and returns the raw command result
func (n *Nmap) Scan(ctx context.Context, target, profile, ports string, timeout time.Duration) executor.Result {
	command := n.BuildCommand(target, profile, ports)
	n.logger.Info("running nmap scan",
		zap.String("target", target),
		zap.String("profile", profile),
		zap.String("command", command))
	return n.runner.Run(ctx, command, timeout)
}

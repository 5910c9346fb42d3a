package health

import (
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/go-logr/logr"
)

const (
	DefaultPacketCount  = 4
	DefaultProbeTimeout = 15 * time.Second
)

// Result is what a single probe found out. Probes never fail: anything that
// goes wrong is reported as an unreachable Result.
type Result struct {
	Reachable  bool
	PacketLoss float64 // percent, -1 when unknown
	Detail     string
}

func unreachable(format string, args ...interface{}) Result {
	return Result{PacketLoss: -1, Detail: fmt.Sprintf(format, args...)}
}

// Prober determines whether a host is reachable.
type Prober interface {
	Probe(ctx context.Context, host Host) Result
}

// runFunc runs a command and returns its combined stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Bound the wait for output pipes once the process has been killed.
	cmd.WaitDelay = time.Second
	return cmd.CombinedOutput()
}

var packetLossPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)% packet loss`)

// ParsePacketLoss extracts the percentage preceding "% packet loss" from ping
// output.
func ParsePacketLoss(output string) (float64, bool) {
	m := packetLossPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	loss, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return loss, true
}

// PingProber sends ICMP echo requests with the system ping utility to the
// host's IPv4 address. A host is reachable when less than all packets are lost.
type PingProber struct {
	Command string
	Count   int
	Timeout time.Duration

	log logr.Logger
	run runFunc
}

// NewPingProber returns a prober sending count packets and killing the ping
// process after timeout. Zero values select the defaults.
func NewPingProber(log logr.Logger, count int, timeout time.Duration) *PingProber {
	if count <= 0 {
		count = DefaultPacketCount
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &PingProber{
		Command: "ping",
		Count:   count,
		Timeout: timeout,
		log:     log,
		run:     runCommand,
	}
}

// Probe pings host once and classifies the result.
func (p *PingProber) Probe(ctx context.Context, host Host) Result {
	addr, err := netip.ParseAddr(host.IPv4)
	if err != nil || !addr.Is4() {
		return unreachable("invalid ipv4 address %q", host.IPv4)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.run(ctx, p.Command, "-c", strconv.Itoa(p.Count), addr.String())
	if ctx.Err() != nil {
		return unreachable("ping timed out after %s", p.Timeout)
	}

	loss, ok := ParsePacketLoss(string(out))
	if !ok {
		if err != nil {
			return unreachable("ping failed: %v", err)
		}
		return unreachable("no packet loss in ping output")
	}
	// ping exits non-zero when no reply arrived; the parsed loss already says so.
	p.log.V(1).Info("ping finished", "host", host.Identity, "address", addr.String(), "packetLoss", loss, "exitErr", err)
	return Result{Reachable: loss < 100, PacketLoss: loss}
}

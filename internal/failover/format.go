package failover

import (
	"fmt"
	"strings"
	"time"
)

// FormatStatus returns a human-readable representation of a Status.
func FormatStatus(st Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subdomain data:\n")
	if st.LastRefresh.IsZero() {
		fmt.Fprintf(&b, "  Last refresh: never\n")
	} else {
		fmt.Fprintf(&b, "  Last refresh: %s\n", st.LastRefresh.Format(time.RFC3339))
	}
	if st.LastRefreshError != "" {
		fmt.Fprintf(&b, "  Last error: %s\n", st.LastRefreshError)
	}
	if st.Stale {
		fmt.Fprintf(&b, "  STALE\n")
	}

	if len(st.Hosts) > 0 {
		fmt.Fprintf(&b, "Hosts:\n")
	}
	for _, h := range st.Hosts {
		fmt.Fprintf(&b, "  - %s (%s)\n", h.Identity, h.Bootstrap)
		ipv6 := h.IPv6
		if ipv6 == "" {
			ipv6 = "<none>"
		}
		fmt.Fprintf(&b, "    Addresses: ipv4=%s ipv6=%s\n", h.IPv4, ipv6)

		if !h.Probed || h.Health == nil {
			fmt.Fprintf(&b, "    Health: pending\n")
			continue
		}
		state := "unreachable"
		if h.Health.Reachable {
			state = "reachable"
		}
		loss := "unknown"
		if h.Health.PacketLoss >= 0 {
			loss = fmt.Sprintf("%g%%", h.Health.PacketLoss)
		}
		fmt.Fprintf(&b, "    Health: %s loss=%s checked=%s\n", state, loss, h.Health.CheckedAt.Format(time.RFC3339))
		if h.Health.Detail != "" {
			fmt.Fprintf(&b, "    Detail: %s\n", h.Health.Detail)
		}
	}

	return b.String()
}

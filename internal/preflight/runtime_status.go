package preflight

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ProbeListener reports whether something accepts TCP connections on addr.
// A connection is opened and closed without sending a path.
func ProbeListener(ctx context.Context, addr string) Result {
	const name = "Trash listener"

	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(probeCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (not accepting: %v)", addr, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (accepting)", addr)}
}

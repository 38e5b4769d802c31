// Package crashreport reports node panics and fatal errors to a Sentry
// endpoint, adapting the teacher's "upload a saved panic log file" flow
// (cmd/syncthing/crash_reporting.go) to a direct client.CaptureError/
// CaptureMessage call: this node keeps no panic-log file staging area, so
// there is nothing to hash, HEAD, or PUT — the error is reported as soon
// as it is observed.
package crashreport

import (
	"fmt"

	"github.com/getsentry/raven-go"

	"github.com/lanchat/lcpnode/internal/identity"
)

// Reporter sends panics and errors to Sentry. A zero Reporter (nil client)
// is a valid no-op, so callers don't need a separate "reporting disabled"
// branch.
type Reporter struct {
	client *raven.Client
}

// New builds a Reporter that reports to dsn, tagged with the local peer's
// display id. An empty dsn disables reporting.
func New(dsn string, self identity.UserID) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := raven.New(dsn)
	if err != nil {
		return nil, fmt.Errorf("crashreport: %w", err)
	}
	client.SetTagsContext(map[string]string{"peer": self.Display()})
	return &Reporter{client: client}, nil
}

// CaptureError reports err, if reporting is enabled, and returns
// immediately; it does not wait for the report to be delivered.
func (r *Reporter) CaptureError(err error) {
	if r == nil || r.client == nil || err == nil {
		return
	}
	r.client.CaptureError(err, nil)
}

// CapturePanic reports a recovered panic value along with a stack trace,
// mirroring the teacher's filterLogLines intent of shipping the trace
// without surrounding chatter. Call from a deferred recover():
//
//	defer func() {
//	    if v := recover(); v != nil {
//	        reporter.CapturePanic(v)
//	        panic(v)
//	    }
//	}()
func (r *Reporter) CapturePanic(v interface{}) {
	if r == nil || r.client == nil {
		return
	}
	packet := raven.NewPacket(
		fmt.Sprintf("panic: %v", v),
		&raven.Stacktrace{Frames: raven.GetOrNewStacktrace(nil, 0, 2, nil).Frames},
	)
	r.client.Capture(packet, nil)
}

// Close flushes any in-flight reports. Call during node shutdown.
func (r *Reporter) Close() {
	if r == nil || r.client == nil {
		return
	}
	r.client.Close()
}

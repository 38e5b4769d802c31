package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lanchat/lcpnode/internal/metrics"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(metrics.MessagesSent)
	metrics.MessagesSent.Inc()
	after := testutil.ToFloat64(metrics.MessagesSent)
	if after != before+1 {
		t.Fatalf("MessagesSent went from %v to %v, want +1", before, after)
	}
}

func TestVecsAreLabeled(t *testing.T) {
	metrics.MessagesFailed.WithLabelValues("header").Inc()
	if got := testutil.ToFloat64(metrics.MessagesFailed.WithLabelValues("header")); got < 1 {
		t.Fatalf("MessagesFailed{stage=header} = %v, want >= 1", got)
	}

	metrics.BytesTransferred.WithLabelValues("sent").Add(42)
	if got := testutil.ToFloat64(metrics.BytesTransferred.WithLabelValues("sent")); got < 42 {
		t.Fatalf("BytesTransferred{direction=sent} = %v, want >= 42", got)
	}
}

func TestPeersOnlineGaugeSettable(t *testing.T) {
	metrics.PeersOnline.Set(3)
	if got := testutil.ToFloat64(metrics.PeersOnline); got != 3 {
		t.Fatalf("PeersOnline = %v, want 3", got)
	}
}

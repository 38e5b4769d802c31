package crashreport_test

import (
	"errors"
	"testing"

	"github.com/lanchat/lcpnode/internal/crashreport"
	"github.com/lanchat/lcpnode/internal/identity"
)

func TestDisabledReporterIsNoop(t *testing.T) {
	r, err := crashreport.New("", identity.Normalize("alice"))
	if err != nil {
		t.Fatal(err)
	}
	r.CaptureError(errors.New("boom"))
	r.CapturePanic("boom")
	r.Close()
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *crashreport.Reporter
	r.CaptureError(errors.New("boom"))
	r.CapturePanic("boom")
	r.Close()
}

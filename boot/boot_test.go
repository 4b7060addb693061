package boot

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/internal/redfishtest"
	"github.com/jacobweinstock/vmedia/redfish"
)

func newController(t *testing.T, svr *redfishtest.Server) *Controller {
	t.Helper()
	gw := redfish.New(svr.URL, redfishtest.User, redfishtest.Pass)
	if err := gw.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(gw, logr.Logger{})
}

func TestGetConfiguration(t *testing.T) {
	svr := redfishtest.New(t)
	got, err := newController(t, svr).GetConfiguration(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := vmedia.BootConfiguration{
		Target:      "None",
		Persistence: vmedia.BootDisabled,
		Allowed:     []string{"None", "Pxe", "Cd", "Hdd", "BiosSetup"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestSetBoot(t *testing.T) {
	tests := map[string]struct {
		call        func(context.Context, *Controller) (bool, error)
		wantTarget  string
		wantEnabled string
		wantErr     bool
	}{
		"one time cd": {
			call: func(ctx context.Context, c *Controller) (bool, error) {
				return c.SetOneTimeBoot(ctx, vmedia.BootTargetCD)
			},
			wantTarget:  "Cd",
			wantEnabled: "Once",
		},
		"continuous pxe": {
			call: func(ctx context.Context, c *Controller) (bool, error) {
				return c.SetBoot(ctx, "Pxe", vmedia.BootContinuous)
			},
			wantTarget:  "Pxe",
			wantEnabled: "Continuous",
		},
		"bmclib cdrom": {
			call: func(ctx context.Context, c *Controller) (bool, error) {
				return c.BootDeviceSet(ctx, "cdrom", false, true)
			},
			wantTarget:  "Cd",
			wantEnabled: "Once",
		},
		"bmclib persistent disk": {
			call: func(ctx context.Context, c *Controller) (bool, error) {
				return c.BootDeviceSet(ctx, "disk", true, false)
			},
			wantTarget:  "Hdd",
			wantEnabled: "Continuous",
		},
		"not allowed by the system": {
			call:    func(ctx context.Context, c *Controller) (bool, error) { return c.SetOneTimeBoot(ctx, "Floppy") },
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svr := redfishtest.New(t)
			ok, err := tc.call(context.Background(), newController(t, svr))
			// the request is always sent, validation is left to the endpoint.
			m := svr.Mutations()
			if len(m) != 1 || m[0].Method != http.MethodPatch || m[0].Path != redfishtest.SystemPath {
				t.Fatalf("expected one PATCH of the system, got %+v", m)
			}
			if tc.wantErr {
				var pe *vmedia.ProtocolError
				if ok || !errors.As(err, &pe) || pe.StatusCode != http.StatusBadRequest {
					t.Fatalf("ok = %v, err = %v", ok, err)
				}
				return
			}
			if !ok || err != nil {
				t.Fatalf("ok = %v, err = %v", ok, err)
			}
			b := svr.Boot()
			if b.BootSourceOverrideTarget != tc.wantTarget || b.BootSourceOverrideEnabled != tc.wantEnabled {
				t.Fatalf("got %s/%s, want %s/%s", b.BootSourceOverrideTarget, b.BootSourceOverrideEnabled, tc.wantTarget, tc.wantEnabled)
			}
		})
	}
}

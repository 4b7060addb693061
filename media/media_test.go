package media

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/internal/redfishtest"
	"github.com/jacobweinstock/vmedia/redfish"
)

const image = "http://images.local/install.iso"

func newController(t *testing.T, svr *redfishtest.Server, opts ...Option) *Controller {
	t.Helper()
	gw := redfish.New(svr.URL, redfishtest.User, redfishtest.Pass)
	if err := gw.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(gw, opts...)
}

func TestList(t *testing.T) {
	svr := redfishtest.New(t)
	c := newController(t, svr)
	got, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []vmedia.MediaDevice{
		{ID: "RemovableDisk", Name: "Virtual Removable Disk", ODataID: redfishtest.USBPath, MediaTypes: []string{"USBStick"}},
		{ID: "CD", Name: "Virtual CD", ODataID: redfishtest.CDPath, MediaTypes: []string{"CD", "DVD"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestFindOptical(t *testing.T) {
	tests := map[string]struct {
		media   []redfish.VirtualMedia
		wantID  string
		wantErr bool
	}{
		"cd after usb": {
			media:  []redfish.VirtualMedia{{ID: "RemovableDisk", MediaTypes: []string{"USBStick"}}, {ID: "CD", MediaTypes: []string{"CD", "DVD"}}},
			wantID: "CD",
		},
		"first optical wins": {
			media:  []redfish.VirtualMedia{{ID: "DVD1", MediaTypes: []string{"DVD"}}, {ID: "CD2", MediaTypes: []string{"CD"}}},
			wantID: "DVD1",
		},
		"usb only": {
			media:   []redfish.VirtualMedia{{ID: "RemovableDisk", MediaTypes: []string{"USBStick"}}},
			wantErr: true,
		},
		"no slots": {wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svr := redfishtest.New(t)
			svr.SetMedia(tc.media...)
			got, err := newController(t, svr).FindOptical(context.Background())
			if tc.wantErr {
				var nf *vmedia.ResourceNotFoundError
				if !errors.As(err, &nf) {
					t.Fatalf("expected ResourceNotFoundError, got %v", err)
				}
				if !strings.Contains(err.Error(), "CD/DVD virtual media found") {
					t.Fatalf("unexpected message %q", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != tc.wantID {
				t.Fatalf("got %s, want %s", got.ID, tc.wantID)
			}
		})
	}
}

func TestMount(t *testing.T) {
	tests := map[string]struct {
		media         []redfish.VirtualMedia
		writable      bool
		wantMutations []redfishtest.Request
		wantErr       bool
	}{
		"empty slot": {
			wantMutations: []redfishtest.Request{
				{Method: http.MethodPost, Path: redfishtest.CDPath + redfish.InsertMediaAction, Body: map[string]any{"Image": image, "WriteProtected": true}},
			},
		},
		"writable": {
			writable: true,
			wantMutations: []redfishtest.Request{
				{Method: http.MethodPost, Path: redfishtest.CDPath + redfish.InsertMediaAction, Body: map[string]any{"Image": image, "WriteProtected": false}},
			},
		},
		"same image already inserted": {
			media: []redfish.VirtualMedia{{ID: "CD", MediaTypes: []string{"CD"}, Inserted: true, Image: image}},
		},
		"different image inserted": {
			media: []redfish.VirtualMedia{{ID: "CD", MediaTypes: []string{"CD"}, Inserted: true, Image: "http://old/old.iso"}},
			wantMutations: []redfishtest.Request{
				{Method: http.MethodPost, Path: redfishtest.CDPath + redfish.EjectMediaAction, Body: map[string]any{}},
				{Method: http.MethodPost, Path: redfishtest.CDPath + redfish.InsertMediaAction, Body: map[string]any{"Image": image, "WriteProtected": true}},
			},
		},
		"no optical slot": {
			media:   []redfish.VirtualMedia{{ID: "RemovableDisk", MediaTypes: []string{"USBStick"}}},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svr := redfishtest.New(t)
			if tc.media != nil {
				svr.SetMedia(tc.media...)
			}
			ok, err := newController(t, svr, WithWritable(tc.writable)).Mount(context.Background(), image)
			if tc.wantErr {
				if ok || err == nil {
					t.Fatalf("ok = %v, err = %v", ok, err)
				}
				if len(svr.Mutations()) != 0 {
					t.Fatal("expected no mutation")
				}
				return
			}
			if !ok || err != nil {
				t.Fatalf("ok = %v, err = %v", ok, err)
			}
			if diff := cmp.Diff(tc.wantMutations, svr.Mutations()); diff != "" {
				t.Fatal(diff)
			}
			var cd redfish.VirtualMedia
			for _, m := range svr.Media() {
				if m.ID == "CD" {
					cd = m
				}
			}
			if !cd.Inserted || cd.Image != image {
				t.Fatalf("expected %s inserted, got %+v", image, cd)
			}
		})
	}
}

func TestMountRejected(t *testing.T) {
	svr := redfishtest.New(t)
	svr.Fail(http.MethodPost, redfishtest.CDPath+redfish.InsertMediaAction, http.StatusInternalServerError)
	ok, err := newController(t, svr).Mount(context.Background(), image)
	if ok {
		t.Fatal("expected failure")
	}
	if err == nil || !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "injected 500") {
		t.Fatalf("expected the status and body in the error, got %v", err)
	}
}

func TestUnmount(t *testing.T) {
	tests := map[string]struct {
		media         []redfish.VirtualMedia
		wantMutations int
	}{
		"inserted":         {media: []redfish.VirtualMedia{{ID: "CD", MediaTypes: []string{"CD"}, Inserted: true, Image: image}}, wantMutations: 1},
		"nothing inserted": {media: []redfish.VirtualMedia{{ID: "CD", MediaTypes: []string{"CD"}}}},
		"no optical slot":  {media: []redfish.VirtualMedia{{ID: "RemovableDisk", MediaTypes: []string{"USBStick"}}}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svr := redfishtest.New(t)
			svr.SetMedia(tc.media...)
			ok, err := newController(t, svr).Unmount(context.Background())
			if !ok || err != nil {
				t.Fatalf("ok = %v, err = %v", ok, err)
			}
			if got := len(svr.Mutations()); got != tc.wantMutations {
				t.Fatalf("got %d mutations, want %d", got, tc.wantMutations)
			}
			for _, m := range svr.Media() {
				if m.Inserted {
					t.Fatalf("%s still inserted", m.ID)
				}
			}
		})
	}
}

func TestUnmountRejected(t *testing.T) {
	svr := redfishtest.New(t)
	svr.SetMedia(redfish.VirtualMedia{ID: "CD", MediaTypes: []string{"CD"}, Inserted: true, Image: image})
	svr.Fail(http.MethodPost, redfishtest.CDPath+redfish.EjectMediaAction, http.StatusBadRequest)
	if ok, err := newController(t, svr).Unmount(context.Background()); ok || err == nil {
		t.Fatalf("ok = %v, err = %v", ok, err)
	}
}

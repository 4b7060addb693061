package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jacobweinstock/vmedia"
)

func notification() vmedia.Notification {
	return vmedia.Notification{
		Host:   "10.0.0.10",
		Target: vmedia.Target{Name: "node1", Endpoint: "10.0.0.10", Username: "root", Password: "calvin", ImageURL: "http://images/x.iso", Host: "10.0.1.10"},
		Result: vmedia.Result{
			RunID:      uuid.MustParse("6f1c1a9e-6b1e-4c1e-9a55-1a2b3c4d5e6f"),
			Target:     "node1",
			FailedStep: vmedia.StepMountISO,
			Cause:      &vmedia.ResourceNotFoundError{Resource: "CD/DVD virtual media"},
			States:     []vmedia.State{vmedia.StateIdle, vmedia.StateMediaMounting, vmedia.StateFailed},
		},
	}
}

func TestWebhook(t *testing.T) {
	tests := map[string]struct {
		secrets  map[vmedia.Algorithm][]string
		status   int
		wantErr  bool
		wantSigs []string
	}{
		"unsigned":         {status: http.StatusOK},
		"sha256":           {secrets: map[vmedia.Algorithm][]string{vmedia.SHA256: {"secret"}}, status: http.StatusOK, wantSigs: []string{SignatureHeader + "-256"}},
		"sha256 and 512":   {secrets: map[vmedia.Algorithm][]string{vmedia.SHA256: {"a", "b"}, vmedia.SHA512: {"c"}}, status: http.StatusAccepted, wantSigs: []string{SignatureHeader + "-256", SignatureHeader + "-512"}},
		"consumer refuses": {status: http.StatusInternalServerError, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var got *http.Request
			var body []byte
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r
				body, _ = io.ReadAll(r.Body)
				w.WriteHeader(tc.status)
			}))
			defer svr.Close()

			wh, err := NewWebhook(svr.URL, WithSecrets(tc.secrets))
			if err != nil {
				t.Fatal(err)
			}
			err = wh.Notify(context.Background(), notification())
			if (err != nil) != tc.wantErr {
				t.Fatalf("Notify() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got.Method != http.MethodPost || got.Header.Get("Content-Type") != "application/json" {
				t.Fatalf("unexpected request %s %s", got.Method, got.Header.Get("Content-Type"))
			}
			ts := got.Header.Get(TimestampHeader)
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				t.Fatalf("bad timestamp header %q", ts)
			}

			if len(tc.wantSigs) == 0 {
				for h := range got.Header {
					if strings.HasPrefix(h, SignatureHeader) {
						t.Fatalf("unexpected signature header %s", h)
					}
				}
				return
			}
			want, err := vmedia.HMAC{Secrets: tc.secrets}.Sign(append(append([]byte{}, body...), ts...))
			if err != nil {
				t.Fatal(err)
			}
			for _, h := range tc.wantSigs {
				algo := vmedia.SHA256
				if strings.HasSuffix(h, "512") {
					algo = vmedia.SHA512
				}
				if !vmedia.Equal(strings.Split(got.Header.Get(h), ","), want[algo]) {
					t.Fatalf("%s = %q does not verify", h, got.Header.Get(h))
				}
			}
		})
	}
}

func TestWebhookBody(t *testing.T) {
	var body map[string]any
	svr := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer svr.Close()
	wh, err := NewWebhook(svr.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := wh.Notify(context.Background(), notification()); err != nil {
		t.Fatal(err)
	}
	target := body["target"].(map[string]any)
	if _, ok := target["Password"]; ok {
		t.Fatal("credentials must never be sent")
	}
	result := body["result"].(map[string]any)
	if result["error"] != "no CD/DVD virtual media found" || result["failed_step"] != vmedia.StepMountISO {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestNewWebhookInvalid(t *testing.T) {
	for _, u := range []string{"ftp://x/y", "://nope"} {
		if _, err := NewWebhook(u); err == nil {
			t.Errorf("expected an error for %q", u)
		}
	}
}

type fakeJS struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.subject, f.data = subj, data
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: "INSTALLS", Sequence: 1}, nil
}

func TestNATSNotify(t *testing.T) {
	js := &fakeJS{}
	p := &NATS{Subject: "vmedia.installs.finished", js: js}
	if err := p.Notify(context.Background(), notification()); err != nil {
		t.Fatal(err)
	}
	if js.subject != "vmedia.installs.finished" {
		t.Fatalf("published to %s", js.subject)
	}
	var got vmedia.Notification
	if err := json.Unmarshal(js.data, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("node1", got.Result.Target); diff != "" {
		t.Fatal(diff)
	}

	js.err = nats.ErrNoStreamResponse
	if err := p.Notify(context.Background(), notification()); !errors.Is(err, nats.ErrNoStreamResponse) {
		t.Fatalf("expected the publish error, got %v", err)
	}
}

func TestNewNATSUnreachable(t *testing.T) {
	if _, err := NewNATS("nats://127.0.0.1:1", "x", nats.Timeout(100*time.Millisecond)); err == nil {
		t.Fatal("expected a connection error")
	}
	if _, err := NewNATS("nats://127.0.0.1:4222", ""); err == nil {
		t.Fatal("expected an error for an empty subject")
	}
}

type notifierFunc func(context.Context, vmedia.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n vmedia.Notification) error { return f(ctx, n) }

func TestMulti(t *testing.T) {
	var calls int
	ok := notifierFunc(func(context.Context, vmedia.Notification) error { calls++; return nil })
	bad := notifierFunc(func(context.Context, vmedia.Notification) error { calls++; return errors.New("down") })

	err := Multi{bad, ok, bad}.Notify(context.Background(), notification())
	if calls != 3 {
		t.Fatalf("expected every notifier to be called, got %d calls", calls)
	}
	if err == nil || strings.Count(err.Error(), "down") != 2 {
		t.Fatalf("unexpected error %v", err)
	}
}

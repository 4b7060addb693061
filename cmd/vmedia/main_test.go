package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/info"
	"github.com/jacobweinstock/vmedia/internal/redfishtest"
	"github.com/jacobweinstock/vmedia/redfish"
	"github.com/jacobweinstock/vmedia/telemetry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func serverConfig(endpoint string, extra string) string {
	return fmt.Sprintf(`wait_for_ssh: false
servers:
  - name: node1
    idrac_host: %s
    idrac_user: %s
    idrac_pass: %s
    iso_url: http://images.local/install.iso
    target_host: 127.0.0.1
%s`, endpoint, redfishtest.User, redfishtest.Pass, extra)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(telemetry.EndpointEnv, "")
	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	t.Log(logs.String())
	return out.String(), err
}

func TestList(t *testing.T) {
	cfg := writeConfig(t, `servers:
  - name: node1
    idrac_host: 10.0.0.10
    idrac_user: root
    idrac_pass: calvin
    iso_url: http://images/x.iso
    target_host: 10.0.1.10
  - name: node2
    idrac_host: 10.0.0.11
    idrac_user: root
    idrac_pass: calvin
    iso_url: s3://images/x.iso
    target_host: 10.0.1.11
`)
	out, err := execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "Configured servers:\n  - node1 (iDRAC: 10.0.0.10, Target: 10.0.1.10)\n  - node2 (iDRAC: 10.0.0.11, Target: 10.0.1.11)\n", out)
}

func TestCommandErrors(t *testing.T) {
	cfg := writeConfig(t, serverConfig("10.0.0.10", ""))
	tests := map[string]struct {
		args       []string
		wantConfig bool
	}{
		"no config flag":         {args: []string{"list"}},
		"missing config file":    {args: []string{"-c", filepath.Join(t.TempDir(), "nope.yaml"), "list"}},
		"unknown server info":    {args: []string{"-c", cfg, "info", "node9"}, wantConfig: true},
		"unknown server install": {args: []string{"-c", cfg, "install", "node9"}, wantConfig: true},
		"missing name":           {args: []string{"-c", cfg, "install"}},
		"unknown log level":      {args: []string{"-c", cfg, "--log-level", "loud", "list"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			if tc.wantConfig {
				var cerr *vmedia.ConfigurationError
				assert.ErrorAs(t, err, &cerr)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	svr := redfishtest.New(t)
	cfg := writeConfig(t, serverConfig(svr.URL, ""))

	out, err := execute(t, "-c", cfg, "info", "node1")
	require.NoError(t, err)

	var doc info.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert := assert.New(t)
	assert.Equal("node1", doc.ServerName)
	assert.Empty(doc.Error)
	assert.NotNil(doc.BasicInfo)
	assert.True(strings.HasPrefix(out, "{\n  "), "expected indented json")
	assert.Empty(svr.Mutations(), "info must not change the server")
}

func TestInfoUnreachable(t *testing.T) {
	cfg := writeConfig(t, serverConfig("127.0.0.1:1", ""))

	out, err := execute(t, "-c", cfg, "info", "node1")
	require.NoError(t, err)

	var doc info.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert := assert.New(t)
	assert.Equal("node1", doc.ServerName)
	assert.Equal(redfish.ProviderName, doc.Provider.Name)
	assert.NotEmpty(doc.Timestamp)
	assert.Contains(doc.Error, "unreachable")
	assert.Nil(doc.BasicInfo)
}

func TestInstall(t *testing.T) {
	tests := map[string]struct {
		setup    func(*redfishtest.Server)
		endpoint string
		wantOut  string
		wantErr  bool
	}{
		"powered on": {
			wantOut: "Installation SUCCESS\n",
		},
		"already off": {
			setup:   func(s *redfishtest.Server) { s.SetPowerState(vmedia.PowerOff) },
			wantOut: "Installation SUCCESS\n",
		},
		"reset rejected": {
			setup: func(s *redfishtest.Server) {
				s.Fail(http.MethodPost, redfishtest.SystemPath+redfish.ResetAction, http.StatusInternalServerError)
			},
			wantOut: "Installation FAILED\n",
			wantErr: true,
		},
		"endpoint unreachable": {
			endpoint: "127.0.0.1:1",
			wantOut:  "Installation FAILED\n",
			wantErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svr := redfishtest.New(t)
			if tc.setup != nil {
				tc.setup(svr)
			}
			endpoint := svr.URL
			if tc.endpoint != "" {
				endpoint = tc.endpoint
			}
			metricsFile := filepath.Join(t.TempDir(), "vmedia.prom")
			cfg := writeConfig(t, serverConfig(endpoint, "metrics_file: "+metricsFile+"\n"))

			out, err := execute(t, "-c", cfg, "install", "node1", "--power-poll-interval", "1ms")
			if (err != nil) != tc.wantErr {
				t.Fatalf("install error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr && !errors.Is(err, errInstallFailed) {
				t.Fatalf("expected errInstallFailed, got %v", err)
			}
			if diff := cmp.Diff(tc.wantOut, out); diff != "" {
				t.Fatal(diff)
			}
			b, err := os.ReadFile(metricsFile)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), "vmedia_install_runs_total") {
				t.Fatalf("metrics file is missing the run counter:\n%s", b)
			}
		})
	}
}

func TestInstallNotifies(t *testing.T) {
	svr := redfishtest.New(t)
	got := make(chan vmedia.Notification, 1)
	var sig string
	consumer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Vmedia-Signature-256")
		body, _ := io.ReadAll(r.Body)
		var n vmedia.Notification
		_ = json.Unmarshal(body, &n)
		got <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer consumer.Close()
	cfg := writeConfig(t, serverConfig(svr.URL, fmt.Sprintf(`notify:
  webhook:
    url: %s
    secrets:
      sha256: [secret]
`, consumer.URL)))

	if _, err := execute(t, "-c", cfg, "install", "node1", "--power-poll-interval", "1ms"); err != nil {
		t.Fatal(err)
	}
	n := <-got
	if n.Target.Name != "node1" || !n.Result.Succeeded || n.Target.Password != "" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("expected a sha256 signature, got %q", sig)
	}
}

// Package redfishtest provides an in-process fake Redfish management endpoint.
package redfishtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/redfish"
)

const (
	User = "root"
	Pass = "calvin"

	SystemPath  = "/redfish/v1/Systems/System.Embedded.1"
	ManagerPath = "/redfish/v1/Managers/iDRAC.Embedded.1"
	CDPath      = ManagerPath + "/VirtualMedia/CD"
	USBPath     = ManagerPath + "/VirtualMedia/RemovableDisk"
)

// Request is a request received by the Server.
type Request struct {
	Method string
	Path   string
	Body   map[string]any
}

// Server is a stateful fake BMC. The zero configuration is a powered on
// system with one removable disk slot and one empty CD slot.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	powerState string
	// forceOffSticks controls whether ForceOff and GracefulShutdown reach Off.
	forceOffSticks bool
	boot           redfish.Boot
	media          []redfish.VirtualMedia
	faults         map[string]fault
	requests       []Request
}

type fault struct {
	status int
	body   string
}

// New starts a TLS Server that is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		powerState:     string(vmedia.PowerOn),
		forceOffSticks: true,
		boot: redfish.Boot{
			BootSourceOverrideTarget:  "None",
			BootSourceOverrideEnabled: "Disabled",
			AllowableValues:           []string{"None", "Pxe", "Cd", "Hdd", "BiosSetup"},
		},
		media: []redfish.VirtualMedia{
			{ODataID: USBPath, ID: "RemovableDisk", Name: "Virtual Removable Disk", MediaTypes: []string{"USBStick"}, ConnectedVia: "NotConnected"},
			{ODataID: CDPath, ID: "CD", Name: "Virtual CD", MediaTypes: []string{"CD", "DVD"}, ConnectedVia: "NotConnected"},
		},
		faults: map[string]fault{},
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

// Target returns a target pointing at this Server.
func (s *Server) Target(name string) vmedia.Target {
	return vmedia.Target{
		Name:     name,
		Endpoint: s.URL,
		Username: User,
		Password: Pass,
		ImageURL: "http://images.local/install.iso",
		Host:     "127.0.0.1",
	}
}

// SetPowerState sets the reported power state.
func (s *Server) SetPowerState(state vmedia.PowerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerState = string(state)
}

// PowerState returns the current power state.
func (s *Server) PowerState() vmedia.PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return vmedia.PowerState(s.powerState)
}

// StuckOn makes power off requests succeed without the system ever reaching Off.
func (s *Server) StuckOn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceOffSticks = false
}

// SetMedia replaces the virtual media slots. ODataIDs are derived from the IDs when empty.
func (s *Server) SetMedia(media ...redfish.VirtualMedia) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = nil
	for _, m := range media {
		if m.ODataID == "" {
			m.ODataID = ManagerPath + "/VirtualMedia/" + m.ID
		}
		s.media = append(s.media, m)
	}
}

// Media returns a copy of the virtual media slots.
func (s *Server) Media() []redfish.VirtualMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]redfish.VirtualMedia(nil), s.media...)
}

// Boot returns the current boot override.
func (s *Server) Boot() redfish.Boot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boot
}

// Fail makes every request matching method and path return status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = fault{status: status, body: fmt.Sprintf(`{"error":{"message":"injected %d"}}`, status)}
}

// Requests returns all requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Mutations returns all POST and PATCH requests received so far.
func (s *Server) Mutations() []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := Request{Method: r.Method, Path: strings.TrimSuffix(r.URL.Path, "/")}
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&req.Body)
	}
	s.requests = append(s.requests, req)

	if u, p, ok := r.BasicAuth(); !ok || u != User || p != Pass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f, ok := s.faults[req.Method+" "+req.Path]; ok {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}

	switch {
	case req.Method == http.MethodGet:
		s.get(w, req.Path)
	case req.Method == http.MethodPost && req.Path == SystemPath+redfish.ResetAction:
		s.reset(w, req.Body)
	case req.Method == http.MethodPatch && req.Path == SystemPath:
		s.patchBoot(w, req.Body)
	case req.Method == http.MethodPost && strings.HasSuffix(req.Path, redfish.InsertMediaAction):
		s.insert(w, strings.TrimSuffix(req.Path, redfish.InsertMediaAction), req.Body)
	case req.Method == http.MethodPost && strings.HasSuffix(req.Path, redfish.EjectMediaAction):
		s.eject(w, strings.TrimSuffix(req.Path, redfish.EjectMediaAction))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) get(w http.ResponseWriter, path string) {
	switch path {
	case "/redfish/v1":
		writeJSON(w, map[string]any{"RedfishVersion": "1.6.0", "Systems": redfish.Link{ODataID: "/redfish/v1/Systems"}})
	case "/redfish/v1/Systems":
		writeJSON(w, collection(SystemPath))
	case SystemPath:
		sys := redfish.ComputerSystem{
			ODataID:           SystemPath,
			ID:                "System.Embedded.1",
			Manufacturer:      "Dell Inc.",
			Model:             "PowerEdge R640",
			SerialNumber:      "CN7475160J0123",
			BiosVersion:       "2.17.1",
			PowerState:        s.powerState,
			Status:            redfish.Status{State: "Enabled", Health: "OK"},
			Boot:              s.boot,
			NetworkInterfaces: &redfish.Link{ODataID: SystemPath + "/NetworkInterfaces"},
			Storage:           &redfish.Link{ODataID: SystemPath + "/Storage"},
			Processors:        &redfish.Link{ODataID: SystemPath + "/Processors"},
		}
		sys.MemorySummary.TotalSystemMemoryGiB = 192
		sys.ProcessorSummary.Count = 2
		writeJSON(w, sys)
	case SystemPath + "/Processors":
		writeJSON(w, collection(SystemPath+"/Processors/CPU.Socket.1", SystemPath+"/Processors/CPU.Socket.2"))
	case SystemPath + "/Processors/CPU.Socket.1", SystemPath + "/Processors/CPU.Socket.2":
		writeJSON(w, redfish.Resource{Model: "Intel(R) Xeon(R) Gold 6130 CPU @ 2.10GHz"})
	case SystemPath + "/NetworkInterfaces":
		writeJSON(w, collection(SystemPath+"/NetworkInterfaces/NIC.Integrated.1"))
	case SystemPath + "/NetworkInterfaces/NIC.Integrated.1":
		writeJSON(w, redfish.Resource{Name: "NIC.Integrated.1", Status: redfish.Status{Health: "OK"}})
	case SystemPath + "/Storage":
		writeJSON(w, collection(SystemPath+"/Storage/RAID.Integrated.1-1"))
	case SystemPath + "/Storage/RAID.Integrated.1-1":
		writeJSON(w, redfish.Resource{Name: "PERC H730P Mini", Status: redfish.Status{Health: "OK"}})
	case "/redfish/v1/Managers":
		writeJSON(w, collection(ManagerPath))
	case ManagerPath + "/VirtualMedia":
		ids := make([]string, 0, len(s.media))
		for _, m := range s.media {
			ids = append(ids, m.ODataID)
		}
		writeJSON(w, collection(ids...))
	default:
		if m := s.find(path); m != nil {
			writeJSON(w, m)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) reset(w http.ResponseWriter, body map[string]any) {
	switch vmedia.ResetType(fmt.Sprint(body["ResetType"])) {
	case vmedia.ResetOn, vmedia.ResetForceRestart, vmedia.ResetGracefulRestart:
		s.powerState = string(vmedia.PowerOn)
	case vmedia.ResetForceOff, vmedia.ResetGracefulShutdown:
		if s.forceOffSticks {
			s.powerState = string(vmedia.PowerOff)
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) patchBoot(w http.ResponseWriter, body map[string]any) {
	boot, ok := body["Boot"].(map[string]any)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	target := fmt.Sprint(boot["BootSourceOverrideTarget"])
	allowed := false
	for _, a := range s.boot.AllowableValues {
		if a == target {
			allowed = true
		}
	}
	if !allowed {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.boot.BootSourceOverrideTarget = target
	s.boot.BootSourceOverrideEnabled = fmt.Sprint(boot["BootSourceOverrideEnabled"])
	w.WriteHeader(http.StatusOK)
}

func (s *Server) insert(w http.ResponseWriter, path string, body map[string]any) {
	m := s.find(path)
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if m.Inserted {
		w.WriteHeader(http.StatusConflict)
		return
	}
	m.Inserted = true
	m.Image = fmt.Sprint(body["Image"])
	m.WriteProtected, _ = body["WriteProtected"].(bool)
	m.ConnectedVia = "URI"
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) eject(w http.ResponseWriter, path string) {
	m := s.find(path)
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m.Inserted = false
	m.Image = ""
	m.ConnectedVia = "NotConnected"
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) find(path string) *redfish.VirtualMedia {
	for i := range s.media {
		if s.media[i].ODataID == path {
			return &s.media[i]
		}
	}
	return nil
}

func collection(ids ...string) redfish.Collection {
	c := redfish.Collection{Members: []redfish.Link{}}
	for _, id := range ids {
		c.Members = append(c.Members, redfish.Link{ODataID: id})
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

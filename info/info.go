// Package info builds the inventory document of a server. Every section is
// queried independently and a failing section never fails the document.
package info

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jacobweinstock/registrar"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/boot"
	"github.com/jacobweinstock/vmedia/media"
	"github.com/jacobweinstock/vmedia/redfish"
)

const (
	unknown = "Unknown"
	// TimestampFormat of Document.Timestamp.
	TimestampFormat = "2006-01-02 15:04:05"
)

// Document is the info query result.
type Document struct {
	ServerName   string                    `json:"server_name"`
	BasicInfo    *BasicInfo                `json:"basic_info,omitempty"`
	NetworkInfo  map[string]Component      `json:"network_info,omitempty"`
	StorageInfo  map[string]Component      `json:"storage_info,omitempty"`
	BootInfo     *vmedia.BootConfiguration `json:"boot_info,omitempty"`
	VirtualMedia []vmedia.MediaDevice      `json:"virtual_media,omitempty"`
	Provider     Provider                  `json:"provider"`
	Timestamp    string                    `json:"timestamp"`
	// Error lists the sections that could not be queried.
	Error string `json:"error,omitempty"`
}

type BasicInfo struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serial_number"`
	PowerState   string `json:"power_state"`
	HealthStatus string `json:"health_status"`
	BiosVersion  string `json:"bios_version"`
	MemoryGB     int    `json:"memory_gb"`
	CPUCount     int    `json:"cpu_count"`
	CPUModel     string `json:"cpu_model"`
}

// Component is a network interface or a storage controller.
type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Provider struct {
	Name     string             `json:"name"`
	Protocol string             `json:"protocol"`
	Features registrar.Features `json:"features"`
}

// Query builds the Document of the server behind c.
func Query(ctx context.Context, c redfish.Client, name string, log logr.Logger) Document {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	doc := newDocument(name)
	var errs []string
	failed := func(section string, err error) {
		log.Error(err, "info section unavailable", "section", section)
		errs = append(errs, fmt.Sprintf("%s: %v", section, err))
	}

	sys, systemPath, err := system(ctx, c)
	if err != nil {
		failed("basic_info", err)
		failed("network_info", err)
		failed("storage_info", err)
	} else {
		doc.BasicInfo = basicInfo(ctx, c, sys, systemPath)
		if doc.NetworkInfo, err = components(ctx, c, sys.NetworkInterfaces, "interface", "eth"); err != nil {
			failed("network_info", err)
		}
		if doc.StorageInfo, err = components(ctx, c, sys.Storage, "storage", "Storage"); err != nil {
			failed("storage_info", err)
		}
	}

	bc, err := boot.New(c, log).GetConfiguration(ctx)
	if err != nil {
		failed("boot_info", err)
	} else {
		doc.BootInfo = &bc
	}

	if doc.VirtualMedia, err = media.New(c, media.WithLogger(log)).List(ctx); err != nil {
		failed("virtual_media", err)
	}

	doc.Error = strings.Join(errs, "; ")

	return doc
}

// Unavailable is the Document of a server whose management endpoint could not be opened.
func Unavailable(name string, err error) Document {
	doc := newDocument(name)
	doc.Error = err.Error()
	return doc
}

func newDocument(name string) Document {
	return Document{
		ServerName: name,
		Provider:   Provider{Name: redfish.ProviderName, Protocol: redfish.ProviderProtocol, Features: redfish.Features},
		Timestamp:  time.Now().Format(TimestampFormat),
	}
}

func system(ctx context.Context, c redfish.Client) (redfish.ComputerSystem, string, error) {
	path, err := redfish.FirstMember(ctx, c, redfish.SystemsPath)
	if err != nil {
		return redfish.ComputerSystem{}, "", err
	}
	var sys redfish.ComputerSystem
	if err := c.Read(ctx, path, &sys); err != nil {
		return redfish.ComputerSystem{}, "", err
	}
	return sys, path, nil
}

func basicInfo(ctx context.Context, c redfish.Client, sys redfish.ComputerSystem, systemPath string) *BasicInfo {
	return &BasicInfo{
		Model:        orUnknown(sys.Model),
		Manufacturer: orUnknown(sys.Manufacturer),
		SerialNumber: orUnknown(sys.SerialNumber),
		PowerState:   orUnknown(sys.PowerState),
		HealthStatus: orUnknown(sys.Status.Health),
		BiosVersion:  orUnknown(sys.BiosVersion),
		MemoryGB:     int(sys.MemorySummary.TotalSystemMemoryGiB),
		CPUCount:     sys.ProcessorSummary.Count,
		CPUModel:     cpuModel(ctx, c, sys, systemPath),
	}
}

// cpuModel is the model of the first processor, Unknown when it cannot be read.
func cpuModel(ctx context.Context, c redfish.Client, sys redfish.ComputerSystem, systemPath string) string {
	path := systemPath + "/Processors"
	if sys.Processors != nil && sys.Processors.ODataID != "" {
		path = sys.Processors.ODataID
	}
	first, err := redfish.FirstMember(ctx, c, path)
	if err != nil {
		return unknown
	}
	var cpu redfish.Resource
	if err := c.Read(ctx, first, &cpu); err != nil {
		return unknown
	}
	return orUnknown(cpu.Model)
}

// components reads every member of the collection behind link. A missing link is an empty section.
func components(ctx context.Context, c redfish.Client, link *redfish.Link, key, fallbackName string) (map[string]Component, error) {
	out := map[string]Component{}
	if link == nil || link.ODataID == "" {
		return out, nil
	}
	var col redfish.Collection
	if err := c.Read(ctx, link.ODataID, &col); err != nil {
		return nil, err
	}
	for i, m := range col.Members {
		var r redfish.Resource
		if err := c.Read(ctx, m.ODataID, &r); err != nil {
			return nil, err
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("%s%d", fallbackName, i)
		}
		out[fmt.Sprintf("%s_%d", key, i)] = Component{Name: name, Status: orUnknown(r.Status.Health)}
	}

	return out, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

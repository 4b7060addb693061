package redfish

import "github.com/jacobweinstock/vmedia"

// Link is a reference to another resource.
type Link struct {
	ODataID string `json:"@odata.id"`
}

// Collection is a Redfish resource collection.
type Collection struct {
	Members []Link `json:"Members"`
}

// Status represents the status and health of a resource.
type Status struct {
	State  string `json:"State,omitempty"`
	Health string `json:"Health,omitempty"`
}

// Boot is the boot override section of a ComputerSystem.
type Boot struct {
	BootSourceOverrideTarget  string   `json:"BootSourceOverrideTarget,omitempty"`
	BootSourceOverrideEnabled string   `json:"BootSourceOverrideEnabled,omitempty"`
	AllowableValues           []string `json:"BootSourceOverrideTarget@Redfish.AllowableValues,omitempty"`
}

// ComputerSystem is the subset of a Redfish ComputerSystem used here.
type ComputerSystem struct {
	ODataID       string `json:"@odata.id,omitempty"`
	ID            string `json:"Id,omitempty"`
	Name          string `json:"Name,omitempty"`
	Manufacturer  string `json:"Manufacturer,omitempty"`
	Model         string `json:"Model,omitempty"`
	SerialNumber  string `json:"SerialNumber,omitempty"`
	BiosVersion   string `json:"BiosVersion,omitempty"`
	PowerState    string `json:"PowerState,omitempty"`
	Status        Status `json:"Status"`
	MemorySummary struct {
		TotalSystemMemoryGiB float64 `json:"TotalSystemMemoryGiB,omitempty"`
	} `json:"MemorySummary"`
	ProcessorSummary struct {
		Count int    `json:"Count,omitempty"`
		Model string `json:"Model,omitempty"`
	} `json:"ProcessorSummary"`
	Boot              Boot  `json:"Boot"`
	NetworkInterfaces *Link `json:"NetworkInterfaces,omitempty"`
	Storage           *Link `json:"Storage,omitempty"`
	Processors        *Link `json:"Processors,omitempty"`
}

// Resource is any resource where only the name and health are of interest.
type Resource struct {
	ODataID string `json:"@odata.id,omitempty"`
	ID      string `json:"Id,omitempty"`
	Name    string `json:"Name,omitempty"`
	Model   string `json:"Model,omitempty"`
	Status  Status `json:"Status"`
}

// VirtualMedia is a virtual media slot of a manager.
type VirtualMedia struct {
	ODataID        string   `json:"@odata.id,omitempty"`
	ID             string   `json:"Id,omitempty"`
	Name           string   `json:"Name,omitempty"`
	MediaTypes     []string `json:"MediaTypes"`
	ConnectedVia   string   `json:"ConnectedVia,omitempty"`
	Inserted       bool     `json:"Inserted"`
	Image          string   `json:"Image,omitempty"`
	WriteProtected bool     `json:"WriteProtected"`
}

// Device converts the slot to the domain type.
// Connected is derived from ConnectedVia, which is NotConnected when the slot is idle.
func (v VirtualMedia) Device() vmedia.MediaDevice {
	return vmedia.MediaDevice{
		ID:         v.ID,
		Name:       v.Name,
		ODataID:    v.ODataID,
		MediaTypes: v.MediaTypes,
		Connected:  v.ConnectedVia != "" && v.ConnectedVia != "NotConnected",
		Inserted:   v.Inserted,
		Image:      v.Image,
	}
}

// ResetRequest is the body of ComputerSystem.Reset.
type ResetRequest struct {
	ResetType vmedia.ResetType `json:"ResetType"`
}

// InsertMediaRequest is the body of VirtualMedia.InsertMedia.
type InsertMediaRequest struct {
	Image          string `json:"Image"`
	WriteProtected bool   `json:"WriteProtected"`
}

// BootPatch is the PATCH body for a boot source override.
type BootPatch struct {
	Boot Boot `json:"Boot"`
}

// Action paths relative to the resource they act on.
const (
	ResetAction       = "/Actions/ComputerSystem.Reset"
	InsertMediaAction = "/Actions/VirtualMedia.InsertMedia"
	EjectMediaAction  = "/Actions/VirtualMedia.EjectMedia"

	SystemsPath  = "/Systems"
	ManagersPath = "/Managers"
)

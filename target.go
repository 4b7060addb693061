package vmedia

// Target identifies one managed server for the duration of one install run.
type Target struct {
	// Name is the configured name of the server.
	Name string `json:"name"`
	// Endpoint is the management controller ip address or hostname.
	Endpoint string `json:"endpoint"`
	// Username for basic authentication against the management endpoint.
	Username string `json:"-"`
	// Password for basic authentication against the management endpoint.
	Password string `json:"-"`
	// ImageURL is the location of the install image. Example: http://images.local/ubuntu.iso or s3://images/ubuntu.iso
	ImageURL string `json:"imageUrl"`
	// Host is the address of the installed OS, used for the readiness check.
	Host string `json:"host"`
}

// PowerState is the chassis power state as reported by the management endpoint.
// Vendors may report values other than the ones defined here.
type PowerState string

const (
	PowerOn          PowerState = "On"
	PowerOff         PowerState = "Off"
	PowerPoweringOn  PowerState = "PoweringOn"
	PowerPoweringOff PowerState = "PoweringOff"
	PowerUnknown     PowerState = "Unknown"
)

// ResetType is a Redfish ComputerSystem.Reset verb.
type ResetType string

const (
	ResetOn               ResetType = "On"
	ResetForceOff         ResetType = "ForceOff"
	ResetGracefulShutdown ResetType = "GracefulShutdown"
	ResetGracefulRestart  ResetType = "GracefulRestart"
	ResetForceRestart     ResetType = "ForceRestart"
)

// MediaDevice is one virtual media slot. It is only valid at the time it was read.
type MediaDevice struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ODataID    string   `json:"-"`
	MediaTypes []string `json:"media_types"`
	Connected  bool     `json:"connected"`
	Inserted   bool     `json:"inserted"`
	Image      string   `json:"image,omitempty"`
}

// IsOptical reports whether the slot accepts CD or DVD media.
func (m MediaDevice) IsOptical() bool {
	for _, t := range m.MediaTypes {
		if t == "CD" || t == "DVD" {
			return true
		}
	}
	return false
}

// BootPersistence is the BootSourceOverrideEnabled value.
type BootPersistence string

const (
	BootOnce       BootPersistence = "Once"
	BootContinuous BootPersistence = "Continuous"
	BootDisabled   BootPersistence = "Disabled"
)

// BootTargetCD is the override target for virtual optical media.
const BootTargetCD = "Cd"

// BootConfiguration is the boot source override of a system.
type BootConfiguration struct {
	Target      string          `json:"current_source"`
	Persistence BootPersistence `json:"enabled"`
	Allowed     []string        `json:"supported_sources"`
}

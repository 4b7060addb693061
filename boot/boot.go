// Package boot reads and sets the boot source override of a Redfish system.
package boot

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/redfish"
)

// Controller sets the boot source override of the first system of a management endpoint.
type Controller struct {
	Client redfish.Client
	Logger logr.Logger
}

// New returns a Controller. A zero Logger discards.
func New(client redfish.Client, log logr.Logger) *Controller {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Controller{Client: client, Logger: log}
}

// GetConfiguration returns the current override and the targets the system accepts.
func (c *Controller) GetConfiguration(ctx context.Context) (vmedia.BootConfiguration, error) {
	system, err := redfish.FirstMember(ctx, c.Client, redfish.SystemsPath)
	if err != nil {
		return vmedia.BootConfiguration{}, err
	}
	var sys redfish.ComputerSystem
	if err := c.Client.Read(ctx, system, &sys); err != nil {
		return vmedia.BootConfiguration{}, err
	}

	return vmedia.BootConfiguration{
		Target:      sys.Boot.BootSourceOverrideTarget,
		Persistence: vmedia.BootPersistence(sys.Boot.BootSourceOverrideEnabled),
		Allowed:     sys.Boot.AllowableValues,
	}, nil
}

// SetOneTimeBoot overrides the next boot only.
func (c *Controller) SetOneTimeBoot(ctx context.Context, target string) (ok bool, err error) {
	return c.SetBoot(ctx, target, vmedia.BootOnce)
}

// SetBoot overrides the boot source. target is not checked against the allowed
// values, the management endpoint rejects what it does not support.
func (c *Controller) SetBoot(ctx context.Context, target string, persistence vmedia.BootPersistence) (ok bool, err error) {
	log := c.Logger.WithValues("target", target, "persistence", persistence)
	system, err := redfish.FirstMember(ctx, c.Client, redfish.SystemsPath)
	if err == nil {
		patch := redfish.BootPatch{Boot: redfish.Boot{
			BootSourceOverrideEnabled: string(persistence),
			BootSourceOverrideTarget:  target,
		}}
		err = c.Client.Mutate(ctx, http.MethodPatch, system, patch)
	}
	if err != nil {
		log.Error(err, "boot override failed")
		return false, err
	}
	log.Info("boot override set")

	return true, nil
}

// bmclibDevices maps bmclib boot device names to override targets.
var bmclibDevices = map[string]string{
	"pxe":   "Pxe",
	"disk":  "Hdd",
	"cdrom": vmedia.BootTargetCD,
	"bios":  "BiosSetup",
	"none":  "None",
}

// BootDeviceSet is the bmclib style entry point. persistent selects Continuous over Once.
// Unknown device names are passed through as override targets. efiBoot is ignored.
func (c *Controller) BootDeviceSet(ctx context.Context, bootDevice string, persistent, _ bool) (ok bool, err error) {
	p := vmedia.BootOnce
	if persistent {
		p = vmedia.BootContinuous
	}
	target, found := bmclibDevices[strings.ToLower(bootDevice)]
	if !found {
		target = bootDevice
	}
	return c.SetBoot(ctx, target, p)
}

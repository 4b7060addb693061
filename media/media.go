// Package media inserts and ejects installer images on the virtual optical drive of a manager.
package media

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/redfish"
)

// Optical is the resource name used when no CD or DVD slot exists.
const Optical = "CD/DVD virtual media"

// Controller manages the virtual media slots of the first manager of a management endpoint.
type Controller struct {
	Client redfish.Client
	Logger logr.Logger
	// Writable inserts images without write protection.
	Writable bool
}

// Option for setting optional Controller values.
type Option func(*Controller)

func WithLogger(l logr.Logger) Option {
	return func(c *Controller) { c.Logger = l }
}

func WithWritable(w bool) Option {
	return func(c *Controller) { c.Writable = w }
}

// New returns a Controller. Images are inserted write protected by default.
func New(client redfish.Client, opts ...Option) *Controller {
	c := &Controller{Client: client, Logger: logr.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every virtual media slot in collection order.
func (c *Controller) List(ctx context.Context) ([]vmedia.MediaDevice, error) {
	manager, err := redfish.FirstMember(ctx, c.Client, redfish.ManagersPath)
	if err != nil {
		return nil, err
	}
	var col redfish.Collection
	if err := c.Client.Read(ctx, manager+"/VirtualMedia", &col); err != nil {
		return nil, err
	}

	devices := make([]vmedia.MediaDevice, 0, len(col.Members))
	for _, m := range col.Members {
		var vm redfish.VirtualMedia
		if err := c.Client.Read(ctx, m.ODataID, &vm); err != nil {
			return nil, err
		}
		if vm.ODataID == "" {
			vm.ODataID = m.ODataID
		}
		devices = append(devices, vm.Device())
	}

	return devices, nil
}

// FindOptical returns the first slot that accepts CD or DVD media.
func (c *Controller) FindOptical(ctx context.Context) (vmedia.MediaDevice, error) {
	devices, err := c.List(ctx)
	if err != nil {
		return vmedia.MediaDevice{}, err
	}
	for _, d := range devices {
		if d.IsOptical() {
			return d, nil
		}
	}

	return vmedia.MediaDevice{}, &vmedia.ResourceNotFoundError{Resource: Optical}
}

// Mount inserts imageURL into the optical slot.
// An already inserted identical image is left alone, a different one is ejected first.
func (c *Controller) Mount(ctx context.Context, imageURL string) (ok bool, err error) {
	dev, err := c.FindOptical(ctx)
	if err != nil {
		c.Logger.Error(err, "mount failed", "image", imageURL)
		return false, err
	}
	log := c.Logger.WithValues("device", dev.ID, "image", imageURL)

	if dev.Inserted {
		if dev.Image == imageURL {
			log.V(1).Info("image already inserted")
			return true, nil
		}
		log.Info("ejecting previous image", "previous", dev.Image)
		if err := c.Client.Mutate(ctx, http.MethodPost, dev.ODataID+redfish.EjectMediaAction, nil); err != nil {
			log.Error(err, "eject of previous image failed")
			return false, err
		}
	}

	req := redfish.InsertMediaRequest{Image: imageURL, WriteProtected: !c.Writable}
	if err := c.Client.Mutate(ctx, http.MethodPost, dev.ODataID+redfish.InsertMediaAction, req); err != nil {
		log.Error(err, "insert failed")
		return false, err
	}
	log.Info("image inserted")

	return true, nil
}

// Unmount ejects whatever is in the optical slot. Having no optical slot or
// nothing inserted counts as success.
func (c *Controller) Unmount(ctx context.Context) (ok bool, err error) {
	dev, err := c.FindOptical(ctx)
	if err != nil {
		if vmedia.IsNotFound(err) {
			c.Logger.V(1).Info("no optical device, nothing to eject")
			return true, nil
		}
		c.Logger.Error(err, "unmount failed")
		return false, err
	}
	if !dev.Inserted {
		c.Logger.V(1).Info("nothing inserted", "device", dev.ID)
		return true, nil
	}
	if err := c.Client.Mutate(ctx, http.MethodPost, dev.ODataID+redfish.EjectMediaAction, nil); err != nil {
		c.Logger.Error(err, "eject failed", "device", dev.ID)
		return false, err
	}
	c.Logger.Info("image ejected", "device", dev.ID, "image", dev.Image)

	return true, nil
}

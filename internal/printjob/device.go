package printjob

import (
	"context"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/scancard"
)

// SerializerDevice adapts a device serializer to Device, so the job shares
// the serializer's queue with manual commands.
func SerializerDevice(s *device.Serializer) Device {
	return serializerDevice{s: s}
}

type serializerDevice struct {
	s *device.Serializer
}

func (d serializerDevice) OpenFile(ctx context.Context, path string) error {
	_, err := device.Await(ctx, d.s.OpenFile(path))
	return err
}

func (d serializerDevice) StartMark(ctx context.Context) error {
	_, err := device.Await(ctx, d.s.StartMark())
	return err
}

func (d serializerDevice) WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error) {
	return d.s.WorkingStatus(ctx)
}

package daemon

import (
	"context"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/scancard"
)

// SerializerDevice exposes a device.Serializer for manual control through
// the daemon.
type SerializerDevice struct {
	s *device.Serializer
}

func NewSerializerDevice(s *device.Serializer) *SerializerDevice {
	return &SerializerDevice{s: s}
}

func (d *SerializerDevice) WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error) {
	return d.s.WorkingStatus(ctx)
}

func (d *SerializerDevice) StopMark(ctx context.Context) error {
	_, err := device.Await(ctx, d.s.StopMark())
	return err
}

func (d *SerializerDevice) LastError(ctx context.Context) (int, string, error) {
	return d.s.LastError(ctx)
}

func (d *SerializerDevice) ClearError(ctx context.Context) error {
	_, err := device.Await(ctx, d.s.ClearError())
	return err
}

func (d *SerializerDevice) ApplyParameters(ctx context.Context, layers []int, mark, fill map[string]any) (*device.ParameterReport, error) {
	return d.s.ApplyParameters(ctx, layers, mark, fill)
}

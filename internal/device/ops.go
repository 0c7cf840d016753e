package device

import (
	"context"

	"github.com/d2verb/scanjob/internal/scancard"
)

func (s *Serializer) cmd(name string, data map[string]any) *Handle {
	return s.Do(scancard.NewCommand(name, data))
}

// merge copies params into a payload that already holds the addressing keys.
// Addressing keys win over params with the same name, so a parameter file
// read back from one layer or entity cannot retarget the write to another.
func merge(addr, params map[string]any) map[string]any {
	data := make(map[string]any, len(addr)+len(params))
	for k, v := range params {
		data[k] = v
	}
	for k, v := range addr {
		data[k] = v
	}
	return data
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// OpenFile loads a job file on the scancard.
func (s *Serializer) OpenFile(path string) *Handle {
	return s.cmd(scancard.CmdOpenFile, map[string]any{"path": path})
}

// CloseFile closes the current job file.
func (s *Serializer) CloseFile() *Handle {
	return s.cmd(scancard.CmdCloseFile, nil)
}

// SaveFile saves the current job to path, overwriting it when cover is set.
func (s *Serializer) SaveFile(path string, cover bool) *Handle {
	return s.cmd(scancard.CmdSaveFile, map[string]any{"path": path, "cover": boolFlag(cover)})
}

func (s *Serializer) StartMark() *Handle    { return s.cmd(scancard.CmdStartMark, nil) }
func (s *Serializer) StopMark() *Handle     { return s.cmd(scancard.CmdStopMark, nil) }
func (s *Serializer) StartPreview() *Handle { return s.cmd(scancard.CmdStartPreview, nil) }
func (s *Serializer) StopPreview() *Handle  { return s.cmd(scancard.CmdStopPreview, nil) }

// GetWorkingStatus queries the device state. The result's RetValue is a
// scancard.WorkingStatus rather than a success code.
func (s *Serializer) GetWorkingStatus() *Handle {
	return s.cmd(scancard.CmdGetWorkingStatus, nil)
}

// WorkingStatus waits for a status query and maps it through the status
// vocabulary.
func (s *Serializer) WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error) {
	r, err := s.GetWorkingStatus().Wait(ctx)
	if err != nil {
		return 0, err
	}
	if r.Err != nil {
		return 0, r.Err
	}
	return scancard.WorkingStatus(r.RetValue), nil
}

// Mark parameters

func (s *Serializer) GetMarkParametersByLayer(layerID int) *Handle {
	return s.cmd(scancard.CmdGetMarkParametersByLayer, map[string]any{"layer_id": layerID})
}

func (s *Serializer) SetMarkParametersByLayer(layerID int, params map[string]any) *Handle {
	return s.cmd(scancard.CmdSetMarkParametersByLayer, merge(map[string]any{"layer_id": layerID}, params))
}

func (s *Serializer) GetMarkParametersByIndex(index, inIndex int) *Handle {
	return s.cmd(scancard.CmdGetMarkParametersByIndex, map[string]any{"index": index, "in_index": inIndex})
}

func (s *Serializer) SetMarkParametersByIndex(index, inIndex int, params map[string]any) *Handle {
	return s.cmd(scancard.CmdSetMarkParametersByIndex, merge(map[string]any{"index": index, "in_index": inIndex}, params))
}

// DownloadParameters pushes edited parameters to the marking hardware.
func (s *Serializer) DownloadParameters() *Handle {
	return s.cmd(scancard.CmdDownloadParameters, nil)
}

// Entities

func (s *Serializer) GetEntityFillProperty(index, inIndex int) *Handle {
	return s.cmd(scancard.CmdGetEntityFillProperty, map[string]any{"index": index, "in_index": inIndex})
}

func (s *Serializer) SetEntityFillProperty(index, inIndex int, params map[string]any) *Handle {
	return s.cmd(scancard.CmdSetEntityFillProperty, merge(map[string]any{"index": index, "in_index": inIndex}, params))
}

func (s *Serializer) GetEntityCount() *Handle {
	return s.cmd(scancard.CmdGetEntityCount, nil)
}

// TranslateEntity moves every entity in the job.
func (s *Serializer) TranslateEntity(dx, dy float64) *Handle {
	return s.cmd(scancard.CmdTranslateEntity, map[string]any{"dx": dx, "dy": dy})
}

// RotateEntity rotates every entity in the job around (cx, cy).
func (s *Serializer) RotateEntity(cx, cy, angle float64) *Handle {
	return s.cmd(scancard.CmdRotateEntity, map[string]any{"cx": cx, "cy": cy, "fAngle": angle})
}

func (s *Serializer) TranslateEntityByIndex(index int, dx, dy float64) *Handle {
	return s.cmd(scancard.CmdTranslateEntityByIndex, map[string]any{"index": index, "dx": dx, "dy": dy})
}

func (s *Serializer) RotateEntityByIndex(index int, cx, cy, angle float64) *Handle {
	return s.cmd(scancard.CmdRotateEntityByIndex, map[string]any{"index": index, "cx": cx, "cy": cy, "fAngle": angle})
}

// ModelTransform describes a combined translate, rotate and scale.
type ModelTransform struct {
	DX, DY, DZ float64
	Axis       string
	Angle      float64
	Scale      float64
}

func (s *Serializer) TransByModel(t ModelTransform) *Handle {
	return s.cmd(scancard.CmdTransByModel, map[string]any{
		"dx":     t.DX,
		"dy":     t.DY,
		"dz":     t.DZ,
		"axis":   t.Axis,
		"fAngle": t.Angle,
		"fScale": t.Scale,
	})
}

func (s *Serializer) GetNameByIndex(index int) *Handle {
	return s.cmd(scancard.CmdGetNameByIndex, map[string]any{"index": index})
}

func (s *Serializer) SetNameByIndex(index int, name string) *Handle {
	return s.cmd(scancard.CmdSetNameByIndex, map[string]any{"index": index, "name": name})
}

func (s *Serializer) GetContentByIndex(index int) *Handle {
	return s.cmd(scancard.CmdGetContentByIndex, map[string]any{"index": index})
}

func (s *Serializer) SetContentByIndex(index int, content string) *Handle {
	return s.cmd(scancard.CmdSetContentByIndex, map[string]any{"index": index, "content": content})
}

func (s *Serializer) GetContentByName(name string) *Handle {
	return s.cmd(scancard.CmdGetContentByName, map[string]any{"name": name})
}

func (s *Serializer) SetContentByName(name, content string) *Handle {
	return s.cmd(scancard.CmdSetContentByName, map[string]any{"name": name, "content": content})
}

func (s *Serializer) GetPosSizeByIndex(index int) *Handle {
	return s.cmd(scancard.CmdGetPosSizeByIndex, map[string]any{"index": index})
}

// PosSize is an entity's position and extent.
type PosSize struct {
	X, Y, Z             float64
	SizeX, SizeY, SizeZ float64
}

func (s *Serializer) SetPosSizeByIndex(index int, p PosSize) *Handle {
	return s.cmd(scancard.CmdSetPosSizeByIndex, map[string]any{
		"index": index,
		"xPos":  p.X,
		"yPos":  p.Y,
		"zPos":  p.Z,
		"xSize": p.SizeX,
		"ySize": p.SizeY,
		"zSize": p.SizeZ,
	})
}

func (s *Serializer) DeleteByIndex(index int) *Handle {
	return s.cmd(scancard.CmdDeleteByIndex, map[string]any{"index": index})
}

func (s *Serializer) CopyByIndex(index int) *Handle {
	return s.cmd(scancard.CmdCopyByIndex, map[string]any{"index": index})
}

func (s *Serializer) MarkByIndex(index int) *Handle {
	return s.cmd(scancard.CmdMarkByIndex, map[string]any{"index": index})
}

// IO

// ReadInput reads all input pins.
func (s *Serializer) ReadInput() *Handle {
	return s.cmd(scancard.CmdReadInput, map[string]any{"data": 0xff})
}

// WriteOutput drives the output pins to the given bit mask.
func (s *Serializer) WriteOutput(output int) *Handle {
	return s.cmd(scancard.CmdWriteOutput, map[string]any{"output": output})
}

// Errors

func (s *Serializer) ClearError() *Handle {
	return s.cmd(scancard.CmdClearError, nil)
}

func (s *Serializer) GetError() *Handle {
	return s.cmd(scancard.CmdGetError, nil)
}

// LastError returns the device's current error code and its description.
func (s *Serializer) LastError(ctx context.Context) (int, string, error) {
	r, err := s.GetError().Wait(ctx)
	if err != nil {
		return RetFailed, "", err
	}
	if r.Err != nil {
		return RetFailed, "", r.Err
	}
	desc := scancard.ErrorDescription(r.RetValue)
	s.logger.Info("device error state", "code", r.RetValue, "description", desc)
	return r.RetValue, desc, nil
}

// Vision

func (s *Serializer) EnableVision(enable bool) *Handle {
	return s.cmd(scancard.CmdEnableVision, map[string]any{"bEnVision": enable})
}

func (s *Serializer) VisionTranslate(dx, dy float64) *Handle {
	return s.cmd(scancard.CmdVisionTranslate, map[string]any{"dX": dx, "dY": dy})
}

func (s *Serializer) VisionRotate(cx, cy, angle float64) *Handle {
	return s.cmd(scancard.CmdVisionRotate, map[string]any{"cX": cx, "cY": cy, "fAngle": angle})
}

// MaxLayerCount estimates the number of layers in the open job from the
// entity count. It never returns less than 1.
func (s *Serializer) MaxLayerCount(ctx context.Context) int {
	resp, err := Await(ctx, s.GetEntityCount())
	if err != nil {
		s.logger.Warn("entity count unavailable", "error", err)
		return 1
	}
	count, ok := resp.Int("count")
	if !ok || count < 1 {
		return 1
	}
	return count
}

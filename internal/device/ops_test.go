package device

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/d2verb/scanjob/internal/scancard"
)

func TestOperations_Payloads(t *testing.T) {
	tests := []struct {
		name     string
		call     func(s *Serializer) *Handle
		wantCmd  string
		wantData map[string]any
	}{
		{"open file", func(s *Serializer) *Handle { return s.OpenFile("/jobs/img_1.emd") }, "open_file", map[string]any{"path": "/jobs/img_1.emd"}},
		{"close file", (*Serializer).CloseFile, "close_file", nil},
		{"save file cover", func(s *Serializer) *Handle { return s.SaveFile("/out.emd", true) }, "save_file", map[string]any{"path": "/out.emd", "cover": 1}},
		{"save file keep", func(s *Serializer) *Handle { return s.SaveFile("/out.emd", false) }, "save_file", map[string]any{"path": "/out.emd", "cover": 0}},
		{"start mark", (*Serializer).StartMark, "start_mark", nil},
		{"stop mark", (*Serializer).StopMark, "stop_mark", nil},
		{"start preview", (*Serializer).StartPreview, "start_preview", nil},
		{"stop preview", (*Serializer).StopPreview, "stop_preview", nil},
		{"working status", (*Serializer).GetWorkingStatus, "get_working_status", nil},
		{"get mark params by layer", func(s *Serializer) *Handle { return s.GetMarkParametersByLayer(2) }, "get_markParameters_by_layer", map[string]any{"layer_id": 2}},
		{
			"set mark params by layer",
			func(s *Serializer) *Handle {
				return s.SetMarkParametersByLayer(2, map[string]any{"markSpeed": 3000, "layer_id": 99})
			},
			"set_markParameters_by_layer",
			map[string]any{"layer_id": 2, "markSpeed": 3000},
		},
		{"get mark params by index", func(s *Serializer) *Handle { return s.GetMarkParametersByIndex(1, 2) }, "get_markParameters_by_index", map[string]any{"index": 1, "in_index": 2}},
		{
			"set mark params by index",
			func(s *Serializer) *Handle { return s.SetMarkParametersByIndex(1, 2, map[string]any{"current": 50}) },
			"set_markParameters_by_index",
			map[string]any{"index": 1, "in_index": 2, "current": 50},
		},
		{"download parameters", (*Serializer).DownloadParameters, "download_Parameters", nil},
		{"get fill", func(s *Serializer) *Handle { return s.GetEntityFillProperty(3, 1) }, "get_entity_fill_property_by_index", map[string]any{"index": 3, "in_index": 1}},
		{
			"set fill",
			func(s *Serializer) *Handle { return s.SetEntityFillProperty(3, 1, map[string]any{"fillSpace": 0.1}) },
			"set_entity_fill_property_by_index",
			map[string]any{"index": 3, "in_index": 1, "fillSpace": 0.1},
		},
		{
			"set fill keeps addressing",
			func(s *Serializer) *Handle {
				return s.SetEntityFillProperty(3, 1, map[string]any{"index": 9, "in_index": 9, "fillSpace": 0.2})
			},
			"set_entity_fill_property_by_index",
			map[string]any{"index": 3, "in_index": 1, "fillSpace": 0.2},
		},
		{
			"set mark params by index keeps addressing",
			func(s *Serializer) *Handle { return s.SetMarkParametersByIndex(1, 2, map[string]any{"index": 7, "current": 40}) },
			"set_markParameters_by_index",
			map[string]any{"index": 1, "in_index": 2, "current": 40},
		},
		{"entity count", (*Serializer).GetEntityCount, "get_entity_count", nil},
		{"translate", func(s *Serializer) *Handle { return s.TranslateEntity(1.5, -2) }, "translate_entity", map[string]any{"dx": 1.5, "dy": -2.0}},
		{"rotate", func(s *Serializer) *Handle { return s.RotateEntity(0, 0, 90) }, "rotate_entity", map[string]any{"cx": 0.0, "cy": 0.0, "fAngle": 90.0}},
		{"translate by index", func(s *Serializer) *Handle { return s.TranslateEntityByIndex(4, 1, 1) }, "translate_entity_by_index", map[string]any{"index": 4, "dx": 1.0, "dy": 1.0}},
		{"rotate by index", func(s *Serializer) *Handle { return s.RotateEntityByIndex(4, 1, 2, 45) }, "rotate_entity_by_index", map[string]any{"index": 4, "cx": 1.0, "cy": 2.0, "fAngle": 45.0}},
		{
			"trans by model",
			func(s *Serializer) *Handle {
				return s.TransByModel(ModelTransform{DX: 1, DY: 2, DZ: 3, Axis: "z", Angle: 10, Scale: 1})
			},
			"TransByModel",
			map[string]any{"dx": 1.0, "dy": 2.0, "dz": 3.0, "axis": "z", "fAngle": 10.0, "fScale": 1.0},
		},
		{"get name", func(s *Serializer) *Handle { return s.GetNameByIndex(0) }, "get_name_by_index", map[string]any{"index": 0}},
		{"set name", func(s *Serializer) *Handle { return s.SetNameByIndex(0, "part") }, "set_name_by_index", map[string]any{"index": 0, "name": "part"}},
		{"get content", func(s *Serializer) *Handle { return s.GetContentByIndex(0) }, "get_content_by_index", map[string]any{"index": 0}},
		{"set content", func(s *Serializer) *Handle { return s.SetContentByIndex(0, "SN1") }, "set_content_by_index", map[string]any{"index": 0, "content": "SN1"}},
		{"get content by name", func(s *Serializer) *Handle { return s.GetContentByName("sn") }, "get_content_by_name", map[string]any{"name": "sn"}},
		{"set content by name", func(s *Serializer) *Handle { return s.SetContentByName("sn", "42") }, "set_content_by_name", map[string]any{"name": "sn", "content": "42"}},
		{"get pos size", func(s *Serializer) *Handle { return s.GetPosSizeByIndex(1) }, "get_pos_size_by_index", map[string]any{"index": 1}},
		{
			"set pos size",
			func(s *Serializer) *Handle {
				return s.SetPosSizeByIndex(1, PosSize{X: 1, Y: 2, Z: 3, SizeX: 4, SizeY: 5, SizeZ: 6})
			},
			"set_pos_size_by_index",
			map[string]any{"index": 1, "xPos": 1.0, "yPos": 2.0, "zPos": 3.0, "xSize": 4.0, "ySize": 5.0, "zSize": 6.0},
		},
		{"delete", func(s *Serializer) *Handle { return s.DeleteByIndex(2) }, "delete_by_index", map[string]any{"index": 2}},
		{"copy", func(s *Serializer) *Handle { return s.CopyByIndex(2) }, "copy_by_index", map[string]any{"index": 2}},
		{"mark by index", func(s *Serializer) *Handle { return s.MarkByIndex(2) }, "mark_by_index", map[string]any{"index": 2}},
		{"read input", (*Serializer).ReadInput, "read_input", map[string]any{"data": 0xff}},
		{"write output", func(s *Serializer) *Handle { return s.WriteOutput(5) }, "write_output", map[string]any{"output": 5}},
		{"clear error", (*Serializer).ClearError, "clear_error", nil},
		{"get error", (*Serializer).GetError, "get_error", nil},
		{"enable vision", func(s *Serializer) *Handle { return s.EnableVision(true) }, "enable_vision", map[string]any{"bEnVision": true}},
		{"vision translate", func(s *Serializer) *Handle { return s.VisionTranslate(1, 2) }, "vision_translate", map[string]any{"dX": 1.0, "dY": 2.0}},
		{"vision rotate", func(s *Serializer) *Handle { return s.VisionRotate(1, 2, 3) }, "vision_rotate", map[string]any{"cX": 1.0, "cY": 2.0, "fAngle": 3.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snd := okSender()
			s := newTestSerializer(t, snd)

			tt.call(s).Result()

			calls := snd.Calls()
			if len(calls) != 1 {
				t.Fatalf("sent %d commands, want 1", len(calls))
			}
			if calls[0].Name != tt.wantCmd {
				t.Errorf("command = %q, want %q", calls[0].Name, tt.wantCmd)
			}
			if len(tt.wantData) == 0 && len(calls[0].Data) == 0 {
				return
			}
			if !reflect.DeepEqual(calls[0].Data, tt.wantData) {
				t.Errorf("data = %#v, want %#v", calls[0].Data, tt.wantData)
			}
		})
	}
}

func TestSerializer_WorkingStatus(t *testing.T) {
	tests := []struct {
		ret  int
		want string
	}{
		{0, "Waiting"},
		{1, "Marking"},
		{2, "Previewing"},
		{3, "Already working"},
		{7, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			snd := &stubSender{fn: func(int, scancard.Command) (*scancard.Response, error) {
				return &scancard.Response{Ret: tt.ret}, nil
			}}
			s := newTestSerializer(t, snd)

			status, err := s.WorkingStatus(context.Background())
			if err != nil {
				t.Fatalf("WorkingStatus() error = %v", err)
			}
			if status.String() != tt.want {
				t.Errorf("status = %q, want %q", status, tt.want)
			}
		})
	}

	t.Run("unreachable device", func(t *testing.T) {
		snd := &stubSender{fn: func(int, scancard.Command) (*scancard.Response, error) {
			return nil, errTransport
		}}
		s := newTestSerializer(t, snd, WithRetry(1, 0))

		_, err := s.WorkingStatus(context.Background())
		if !scancard.IsTransport(err) {
			t.Errorf("error = %v, want transport failure", err)
		}
	})
}

func TestSerializer_LastError(t *testing.T) {
	snd := &stubSender{fn: func(int, scancard.Command) (*scancard.Response, error) {
		return &scancard.Response{Ret: 43}, nil
	}}
	s := newTestSerializer(t, snd)

	code, desc, err := s.LastError(context.Background())
	if err != nil {
		t.Fatalf("LastError() error = %v", err)
	}
	if code != 43 {
		t.Errorf("code = %d, want 43", code)
	}
	if desc != "Hardware stop signal, external emergency stop" {
		t.Errorf("description = %q", desc)
	}
}

func TestSerializer_MaxLayerCount(t *testing.T) {
	tests := []struct {
		name string
		resp *scancard.Response
		err  error
		want int
	}{
		{"count reported", &scancard.Response{Ret: 1, Data: map[string]any{"count": 12.0}}, nil, 12},
		{"zero count", &scancard.Response{Ret: 1, Data: map[string]any{"count": 0.0}}, nil, 1},
		{"missing count", &scancard.Response{Ret: 1}, nil, 1},
		{"device error", &scancard.Response{Ret: 30}, nil, 1},
		{"unreachable", nil, errTransport, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snd := &stubSender{fn: func(int, scancard.Command) (*scancard.Response, error) {
				return tt.resp, tt.err
			}}
			s := newTestSerializer(t, snd, WithRetry(1, 0))

			if got := s.MaxLayerCount(context.Background()); got != tt.want {
				t.Errorf("MaxLayerCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

// layerDevice answers parameter queries for the layers in present.
func layerDevice(present map[int]bool, failFill map[int]bool) *stubSender {
	return &stubSender{fn: func(_ int, cmd scancard.Command) (*scancard.Response, error) {
		switch cmd.Name {
		case scancard.CmdGetMarkParametersByLayer:
			if present[cmd.Data["layer_id"].(int)] {
				return &scancard.Response{Ret: 1}, nil
			}
			return &scancard.Response{Ret: 37}, nil
		case scancard.CmdGetEntityFillProperty:
			if present[cmd.Data["index"].(int)] {
				return &scancard.Response{Ret: 1}, nil
			}
			return &scancard.Response{Ret: 34}, nil
		case scancard.CmdSetEntityFillProperty:
			if failFill[cmd.Data["index"].(int)] {
				return &scancard.Response{Ret: 14}, nil
			}
		}
		return &scancard.Response{Ret: 1}, nil
	}}
}

func TestSerializer_ValidateLayerEntity(t *testing.T) {
	snd := layerDevice(map[int]bool{1: true}, nil)
	s := newTestSerializer(t, snd)
	ctx := context.Background()

	if v := s.ValidateLayerEntity(ctx, 1, 1, 1); !v.Valid || v.Message != "Layer and entity validated" {
		t.Errorf("valid layer: %+v", v)
	}
	if v := s.ValidateLayerEntity(ctx, 2, 1, 1); v.Valid || v.Message != "Layer 2 does not exist or cannot be accessed" {
		t.Errorf("missing layer: %+v", v)
	}
	if v := s.ValidateLayerEntity(ctx, 1, 5, 1); v.Valid || v.Message != "Entity at index 5,1 does not exist" {
		t.Errorf("missing entity: %+v", v)
	}
}

func TestSerializer_ApplyParameters(t *testing.T) {
	mark := map[string]any{"markSpeed": 3000}
	fill := map[string]any{"fillSpace": 0.05}

	t.Run("skips invalid layers", func(t *testing.T) {
		snd := layerDevice(map[int]bool{1: true, 3: true}, nil)
		s := newTestSerializer(t, snd)

		report, err := s.ApplyParameters(context.Background(), []int{1, 2, 3}, mark, fill)
		if err != nil {
			t.Fatalf("ApplyParameters() error = %v", err)
		}
		if !reflect.DeepEqual(report.Applied, []int{1, 3}) {
			t.Errorf("Applied = %v, want [1 3]", report.Applied)
		}
		if len(report.Invalid) != 1 || report.Invalid[0].LayerID != 2 {
			t.Errorf("Invalid = %+v, want layer 2", report.Invalid)
		}
		if !report.Downloaded {
			t.Error("Downloaded = false, want true")
		}

		for _, c := range snd.Calls() {
			if c.Name == scancard.CmdSetMarkParametersByLayer && c.Data["layer_id"] == 2 {
				t.Error("parameters written to invalid layer 2")
			}
		}
	})

	t.Run("records write failures", func(t *testing.T) {
		snd := layerDevice(map[int]bool{1: true, 2: true}, map[int]bool{2: true})
		s := newTestSerializer(t, snd)

		report, err := s.ApplyParameters(context.Background(), []int{1, 2}, mark, fill)
		if err != nil {
			t.Fatalf("ApplyParameters() error = %v", err)
		}
		if !reflect.DeepEqual(report.Applied, []int{1}) {
			t.Errorf("Applied = %v, want [1]", report.Applied)
		}
		if len(report.Failures) != 1 {
			t.Errorf("Failures = %v, want one entry", report.Failures)
		}
	})

	t.Run("no valid layers", func(t *testing.T) {
		snd := layerDevice(map[int]bool{}, nil)
		s := newTestSerializer(t, snd)

		report, err := s.ApplyParameters(context.Background(), []int{1, 2}, mark, fill)
		if !errors.Is(err, ErrNoValidLayers) {
			t.Errorf("error = %v, want ErrNoValidLayers", err)
		}
		if len(report.Invalid) != 2 {
			t.Errorf("Invalid = %d entries, want 2", len(report.Invalid))
		}
		for _, c := range snd.Calls() {
			if c.Name == scancard.CmdDownloadParameters {
				t.Error("parameters downloaded with no valid layers")
			}
		}
	})
}

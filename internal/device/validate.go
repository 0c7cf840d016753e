package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoValidLayers is returned by ApplyParameters when every layer failed
// validation.
var ErrNoValidLayers = errors.New("no valid layers to apply parameters to")

// ValidationError reports a layer or entity that cannot be addressed.
type ValidationError struct {
	LayerID int
	Index   int
	InIndex int
	Reason  string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validation is the outcome of a pre-flight check.
type Validation struct {
	Valid   bool
	Message string
}

// ValidateLayerEntity checks that the layer's mark parameters and the
// entity's fill properties can both be read. The two queries are issued from
// the caller's goroutine, so the serializer worker is never blocked on them.
func (s *Serializer) ValidateLayerEntity(ctx context.Context, layerID, index, inIndex int) Validation {
	if err := s.validate(ctx, layerID, index, inIndex); err != nil {
		return Validation{Valid: false, Message: err.Error()}
	}
	return Validation{Valid: true, Message: "Layer and entity validated"}
}

func (s *Serializer) validate(ctx context.Context, layerID, index, inIndex int) error {
	r, err := s.GetMarkParametersByLayer(layerID).Wait(ctx)
	if err != nil {
		return &ValidationError{LayerID: layerID, Index: index, InIndex: inIndex, Reason: fmt.Sprintf("Validation error: %v", err)}
	}
	if !r.OK() {
		return &ValidationError{LayerID: layerID, Index: index, InIndex: inIndex, Reason: fmt.Sprintf("Layer %d does not exist or cannot be accessed", layerID)}
	}

	r, err = s.GetEntityFillProperty(index, inIndex).Wait(ctx)
	if err != nil {
		return &ValidationError{LayerID: layerID, Index: index, InIndex: inIndex, Reason: fmt.Sprintf("Validation error: %v", err)}
	}
	if !r.OK() {
		return &ValidationError{LayerID: layerID, Index: index, InIndex: inIndex, Reason: fmt.Sprintf("Entity at index %d,%d does not exist", index, inIndex)}
	}
	return nil
}

// ParameterReport summarizes a batch parameter write.
type ParameterReport struct {
	Applied    []int
	Invalid    []*ValidationError
	Failures   []string
	Downloaded bool
}

// ApplyParameters writes mark and fill parameters to every layer in layers.
// Each layer is validated first and skipped when invalid, so one missing
// layer does not leave the batch half-written. After the writes the
// parameters are downloaded to the hardware.
func (s *Serializer) ApplyParameters(ctx context.Context, layers []int, mark, fill map[string]any) (*ParameterReport, error) {
	report := &ParameterReport{}

	var valid []int
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.validate(ctx, layer, layer, 1); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				report.Invalid = append(report.Invalid, ve)
			}
			s.logger.Warn("layer failed validation", "layer", layer, "reason", err)
			continue
		}
		valid = append(valid, layer)
	}
	if len(valid) == 0 {
		return report, ErrNoValidLayers
	}

	for _, layer := range valid {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if len(mark) > 0 {
			if _, err := Await(ctx, s.SetMarkParametersByLayer(layer, mark)); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("Layer %d marking parameters: %v", layer, err))
				continue
			}
		}
		if len(fill) > 0 {
			if _, err := Await(ctx, s.SetEntityFillProperty(layer, 1, fill)); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("Layer %d fill parameters: %v", layer, err))
				continue
			}
		}
		report.Applied = append(report.Applied, layer)
	}

	if _, err := Await(ctx, s.DownloadParameters()); err != nil {
		report.Failures = append(report.Failures, fmt.Sprintf("Downloading parameters: %v", err))
		return report, nil
	}
	report.Downloaded = true
	return report, nil
}

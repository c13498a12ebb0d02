package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Mitigation value object
type Mitigation struct {
	Recommendation string `json:"recommendation"`
	Reasoning      string `json:"reasoning"`
	Caveats        string `json:"caveats"`
}

// LayerState is one of Pending, Analyzing, Complete or Failed.
type LayerState interface {
	Status() Status
	isLayerState()
}

type Pending struct{}

// Analyzing carries the threat text once the threat step succeeded.
type Analyzing struct {
	Threat string
}

// Complete always has both the threat and the mitigation.
type Complete struct {
	Threat     string
	Mitigation Mitigation
}

// Failed keeps whatever threat text was obtained before the failure.
// Err is nil when the layer was interrupted rather than failed by the AI.
type Failed struct {
	Threat string
	Err    *failure.Error
}

func (Pending) Status() Status   { return StatusPending }
func (Analyzing) Status() Status { return StatusAnalyzing }
func (Complete) Status() Status  { return StatusComplete }
func (Failed) Status() Status    { return StatusError }

func (Pending) isLayerState()   {}
func (Analyzing) isLayerState() {}
func (Complete) isLayerState()  {}
func (Failed) isLayerState()    {}

// LayerResult is the per-run state of one catalog layer.
type LayerResult struct {
	ID          string
	Name        string
	Description string
	State       LayerState
}

// Status of the layer; a nil state counts as pending.
func (l LayerResult) Status() Status {
	if l.State == nil {
		return StatusPending
	}
	return l.State.Status()
}

// Threat returns the threat text obtained so far, if any.
func (l LayerResult) Threat() string {
	switch s := l.State.(type) {
	case Analyzing:
		return s.Threat
	case Complete:
		return s.Threat
	case Failed:
		return s.Threat
	}
	return ""
}

// Mitigation is only available on complete layers.
func (l LayerResult) Mitigation() (Mitigation, bool) {
	if s, ok := l.State.(Complete); ok {
		return s.Mitigation, true
	}
	return Mitigation{}, false
}

// Err is the classified error of a failed layer.
func (l LayerResult) Err() *failure.Error {
	if s, ok := l.State.(Failed); ok {
		return s.Err
	}
	return nil
}

type layerJSON struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	Threat      *string        `json:"threat"`
	Mitigation  *Mitigation    `json:"mitigation"`
	Error       *failure.Error `json:"error,omitempty"`
}

func (l LayerResult) MarshalJSON() ([]byte, error) {
	out := layerJSON{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Status:      l.Status(),
		Error:       l.Err(),
	}
	if t := l.Threat(); t != "" {
		out.Threat = &t
	}
	if m, ok := l.Mitigation(); ok {
		out.Mitigation = &m
	}
	return json.Marshal(out)
}

func (l *LayerResult) UnmarshalJSON(data []byte) error {
	var in layerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	l.ID, l.Name, l.Description = in.ID, in.Name, in.Description

	threat := ""
	if in.Threat != nil {
		threat = *in.Threat
	}
	switch in.Status {
	case StatusPending, "":
		l.State = Pending{}
	case StatusAnalyzing:
		l.State = Analyzing{Threat: threat}
	case StatusComplete:
		if in.Mitigation == nil || threat == "" {
			return fmt.Errorf("layer %s: complete without threat and mitigation", in.ID)
		}
		l.State = Complete{Threat: threat, Mitigation: *in.Mitigation}
	case StatusError:
		l.State = Failed{Threat: threat, Err: in.Error}
	default:
		return fmt.Errorf("layer %s: unknown status %q", in.ID, in.Status)
	}
	return nil
}

package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

func TestLayerResultAccessors(t *testing.T) {
	m := Mitigation{Recommendation: "r", Reasoning: "why", Caveats: "c"}

	tests := []struct {
		name       string
		state      LayerState
		status     Status
		threat     string
		mitigation bool
	}{
		{"nil state", nil, StatusPending, "", false},
		{"pending", Pending{}, StatusPending, "", false},
		{"analyzing without threat", Analyzing{}, StatusAnalyzing, "", false},
		{"analyzing with threat", Analyzing{Threat: "t"}, StatusAnalyzing, "t", false},
		{"complete", Complete{Threat: "t", Mitigation: m}, StatusComplete, "t", true},
		{"failed after threat", Failed{Threat: "t"}, StatusError, "t", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := LayerResult{ID: "x", State: tt.state}
			assert.Equal(t, tt.status, l.Status())
			assert.Equal(t, tt.threat, l.Threat())
			got, ok := l.Mitigation()
			assert.Equal(t, tt.mitigation, ok)
			if ok {
				assert.Equal(t, m, got)
			}
		})
	}
}

func TestLayerResultJSONIsFlat(t *testing.T) {
	l := LayerResult{
		ID:          "foundation-models",
		Name:        "Foundation Models",
		Description: "Core AI models",
		State:       Complete{Threat: "poisoning", Mitigation: Mitigation{Recommendation: "sign", Reasoning: "integrity", Caveats: "cost"}},
	}
	b, err := json.Marshal(l)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "complete", flat["status"])
	assert.Equal(t, "poisoning", flat["threat"])
	assert.Equal(t, "sign", flat["mitigation"].(map[string]any)["recommendation"])
	assert.NotContains(t, flat, "error")

	pending, err := json.Marshal(LayerResult{ID: "a", State: Pending{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","name":"","description":"","status":"pending","threat":null,"mitigation":null}`, string(pending))
}

func TestLayerResultJSONRoundTrip(t *testing.T) {
	failed := LayerResult{
		ID:    "data-operations",
		State: Failed{Threat: "leak", Err: failure.Network()},
	}
	b, err := json.Marshal(failed)
	require.NoError(t, err)

	var back LayerResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, StatusError, back.Status())
	assert.Equal(t, "leak", back.Threat())
	require.NotNil(t, back.Err())
	assert.Equal(t, failure.CodeNetworkError, back.Err().Code)
}

func TestLayerResultRejectsIncompleteComplete(t *testing.T) {
	var l LayerResult
	err := json.Unmarshal([]byte(`{"id":"a","status":"complete","threat":"t","mitigation":null}`), &l)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"a","status":"done"}`), &l)
	assert.Error(t, err)
}

func TestRunCloneIsDeep(t *testing.T) {
	r := &Run{
		ID:      "r1",
		Layers:  []LayerResult{{ID: "a", State: Pending{}}},
		Logs:    []LogEntry{{Message: "one"}},
		Diagram: &Diagram{Markup: "graph TD;", Image: []byte{1, 2}},
	}
	cp := r.Clone()
	cp.Layers[0].State = Analyzing{}
	cp.Logs[0].Message = "changed"
	cp.Diagram.Image[0] = 9

	assert.Equal(t, StatusPending, r.Layers[0].Status())
	assert.Equal(t, "one", r.Logs[0].Message)
	assert.Equal(t, byte(1), r.Diagram.Image[0])
	assert.Nil(t, (*Run)(nil).Clone())
}

func TestNewPaginatedResult(t *testing.T) {
	p := NewPaginatedResult(nil, 2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.NotNil(t, p.Data)

	assert.Equal(t, 0, NewPaginatedResult(nil, 1, 20, 0).TotalPages)
}

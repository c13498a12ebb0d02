package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogOrder(t *testing.T) {
	all := All()
	ids := make([]string, 0, len(all))
	for _, l := range all {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{
		"foundation-models",
		"data-operations",
		"agent-frameworks",
		"deployment-infrastructure",
		"evaluation-observability",
		"security-compliance",
		"agent-ecosystem",
	}, ids)
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0].Name = "changed"
	assert.Equal(t, "Foundation Models", All()[0].Name)
}

func TestFind(t *testing.T) {
	l, ok := Find("agent-ecosystem")
	assert.True(t, ok)
	assert.Equal(t, "Agent Ecosystem", l.Name)

	_, ok = Find("layer-8")
	assert.False(t, ok)
}

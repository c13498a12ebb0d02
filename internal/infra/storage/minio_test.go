package storage

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	u := &url.URL{Scheme: "https", Host: "minio.local:9000"}
	assert.Equal(t, "https://minio.local:9000/reports/acme/r1/MAESTRO_Threat_Analysis.pdf",
		objectURL(u, "reports", "acme/r1/MAESTRO_Threat_Analysis.pdf"))

	assert.Equal(t, "http://localhost/reports/a.pdf", objectURL(&url.URL{Host: "localhost"}, "reports", "a.pdf"))
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditMetadata_ScanBytes(t *testing.T) {
	var md AuditMetadata
	require.NoError(t, md.Scan([]byte(`{"surface":"staff","count":3}`)))

	assert.Equal(t, "staff", md["surface"])
	assert.Equal(t, float64(3), md["count"])
}

func TestAuditMetadata_ScanNil(t *testing.T) {
	var md AuditMetadata
	require.NoError(t, md.Scan(nil))

	assert.NotNil(t, md)
	assert.Empty(t, md)
}

func TestAuditMetadata_ScanUnsupportedType(t *testing.T) {
	var md AuditMetadata
	assert.ErrorIs(t, md.Scan(42), ErrBadRequest)
}

func TestAuditMetadata_ValueNil(t *testing.T) {
	var md AuditMetadata
	v, err := md.Value()

	require.NoError(t, err)
	assert.Nil(t, v)
}

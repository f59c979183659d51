package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_Scan(t *testing.T) {
	var scores JSONB[map[string]float64]

	require.NoError(t, scores.Scan([]byte(`{"last_name":1,"first_name":0.5}`)))
	assert.Equal(t, map[string]float64{"last_name": 1, "first_name": 0.5}, scores.Data)

	require.NoError(t, scores.Scan(`{"address":0.25}`))
	assert.Equal(t, map[string]float64{"address": 0.25}, scores.Data)

	require.NoError(t, scores.Scan(nil))
	assert.Nil(t, scores.Data)

	assert.Error(t, scores.Scan(42))
}

func TestJSONB_ValueSortsKeys(t *testing.T) {
	value, err := NewJSONB(map[string]float64{"b": 1, "a": 0.5}).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":0.5,"b":1}`, string(value.([]byte)))
}

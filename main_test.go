package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("120.5, 64")
	require.NoError(t, err)
	assert.Equal(t, float32(120.5), p.X)
	assert.Equal(t, float32(64), p.Y)
	assert.Equal(t, 1, p.Label)

	_, err = parsePoint("120")
	assert.Error(t, err)
	_, err = parsePoint("a,b")
	assert.Error(t, err)
	_, err = parsePoint("1,2,3")
	assert.Error(t, err)
}

package main

import (
	"testing"

	"github.com/avrabe/raco/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestApplyAddr(t *testing.T) {
	cfg := config.Default()
	assert.NoError(t, applyAddr(cfg, "0.0.0.0:8080"))
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.Addr())

	assert.NoError(t, applyAddr(cfg, ":9090"))
	assert.Equal(t, "0.0.0.0:9090", cfg.Web.Addr())

	assert.Error(t, applyAddr(cfg, "localhost"))
	assert.Error(t, applyAddr(cfg, "localhost:http"))
}

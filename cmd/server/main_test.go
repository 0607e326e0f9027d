package main

import (
	"testing"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/config"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func Test_serverOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SendQueueSize = 64
	cfg.Server.CommandRate = 2.5
	cfg.Server.CommandBurst = 4

	opts := serverOptions(cfg)

	assert.Equal(t, 64, opts.SendQueueSize)
	assert.Equal(t, rate.Limit(2.5), opts.CommandRate)
	assert.Equal(t, 4, opts.CommandBurst)
}

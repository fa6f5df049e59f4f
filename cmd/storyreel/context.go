package main

import (
	"sync"

	"github.com/bobarin/storyreel/internal/app"
	"github.com/bobarin/storyreel/internal/config"
)

// commandContext loads configuration and media services once per process.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	mediaOnce sync.Once
	media     *app.Media
	mediaErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

// ensureConfig loads the environment and checks the settings purpose needs.
func (c *commandContext) ensureConfig(purpose config.Purpose) (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	if c.configErr != nil {
		return nil, c.configErr
	}
	if err := c.config.Validate(purpose); err != nil {
		return nil, err
	}
	return c.config, nil
}

func (c *commandContext) ensureMedia() (*app.Media, error) {
	cfg, err := c.ensureConfig(config.PurposeMedia)
	if err != nil {
		return nil, err
	}
	c.mediaOnce.Do(func() {
		c.media, c.mediaErr = app.NewMedia(cfg)
	})
	return c.media, c.mediaErr
}

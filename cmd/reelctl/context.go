package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/storyreel/studio/internal/client"
	"github.com/storyreel/studio/internal/logging"
)

// commandContext resolves settings from flags, REELCTL_* environment
// variables and defaults, in that order.
type commandContext struct {
	v *viper.Viper

	clientOnce sync.Once
	client     *client.GenerationClient
	logger     *slog.Logger
}

func newCommandContext() *commandContext {
	v := viper.New()
	v.SetEnvPrefix("REELCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &commandContext{v: v}
}

func (c *commandContext) bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = c.v.BindPFlag(f.Name, f)
	})
}

func (c *commandContext) log() *slog.Logger {
	c.init()
	return c.logger
}

func (c *commandContext) apiClient() *client.GenerationClient {
	c.init()
	return c.client
}

func (c *commandContext) init() {
	c.clientOnce.Do(func() {
		logger, err := logging.New(logging.Options{
			Level:  c.v.GetString("log-level"),
			Format: "text",
			Output: os.Stderr,
		})
		if err != nil {
			logger = logging.Discard()
		}
		c.logger = logger
		c.client = client.NewGenerationClient(c.v.GetString("api"), c.v.GetString("token"), logging.Component(logger, "client"))
	})
}

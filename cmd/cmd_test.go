package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/webitel/danmaku-relay/config"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	require.NoError(t, app.Run([]string{ServiceName, "version"}))
	assert.Contains(t, buf.String(), ServiceName+" v"+version)
	assert.Contains(t, buf.String(), "with go")
}

func TestVersionFlag(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	require.NoError(t, app.Run([]string{ServiceName, "-V"}))
	assert.Contains(t, buf.String(), ServiceName)
}

func TestApplyFlagsOverridesOnlyExplicitFlags(t *testing.T) {
	t.Setenv("DANMAKU_SERVER_ADDRESS", "0.0.0.0")
	t.Setenv("DANMAKU_SERVER_THREADS", "3")

	var cfg *config.Config
	cmd := serverCmd(buildInfo())
	cmd.Action = func(c *cli.Context) error {
		loader := config.NewLoader(c.String("config_file"))
		applyFlags(c, loader)

		var err error
		cfg, err = loader.Load()
		return err
	}

	app := &cli.App{Name: ServiceName, Commands: []*cli.Command{cmd}}
	require.NoError(t, app.Run([]string{ServiceName, "server", "-p", "7777", "-v"}))

	require.NotNil(t, cfg)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.True(t, cfg.Log.Verbose)
	assert.Equal(t, "0.0.0.0", cfg.Server.Address, "unset flag defaults do not mask the environment")
	assert.Equal(t, 3, cfg.Server.Threads)
}

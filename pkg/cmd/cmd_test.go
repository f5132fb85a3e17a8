package cmd_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/wattprof/pkg/cmd"
)

func TestNewCommand(t *testing.T) {
	root := cmd.NewCommand(cmd.NewOptions(cmd.WithContext(context.TODO())))

	require.Equal(t, "wattprof", root.Name())
	require.True(t, root.HasSubCommands())

	names := make([]string, 0)
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	require.Contains(t, names, "profile")
	require.Contains(t, names, "devices")
}

func TestNewCommand_LogLevelFlag(t *testing.T) {
	root := cmd.NewCommand(cmd.NewOptions())

	flag := root.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	require.Equal(t, "info", flag.DefValue)
}

func TestNewCommand_Help(t *testing.T) {
	root := cmd.NewCommand(cmd.NewOptions())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "profile")
	require.Contains(t, out.String(), "devices")
}

func TestProfileCommand_Flags(t *testing.T) {
	root := cmd.NewCommand(cmd.NewOptions())

	sub, _, err := root.Find([]string{"profile"})
	require.NoError(t, err)

	for flag, def := range map[string]string{
		"pid":           "-1",
		"gpu-count":     "0",
		"freq":          "99",
		"tick":          "1s",
		"pages":         "0",
		"kernel-stacks": "false",
		"lines":         "false",
		"report":        "true",
		"status":        "false",
		"ready-socket":  "",
	} {
		f := sub.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		require.Equal(t, def, f.DefValue, flag)
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersServeAndRoutesSubcommands(t *testing.T) {
	root := rootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["routes"])
}

func TestRootCmd_ConfigFlagRegistered(t *testing.T) {
	root := rootCmd()
	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestRoutesCmd_ValidateSubcommandRequiresExactlyOneArg(t *testing.T) {
	cmd := routesCmd()
	var validate = cmd.Commands()[0]
	assert.Equal(t, "validate [file]", validate.Use)
	assert.Error(t, validate.Args(validate, []string{}))
	assert.Error(t, validate.Args(validate, []string{"a", "b"}))
	assert.NoError(t, validate.Args(validate, []string{"a"}))
}

func TestPortString(t *testing.T) {
	assert.Equal(t, "8080", portString(8080))
	assert.Equal(t, "0", portString(0))
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetOut(&out)
	hashPasswordCmd.SetIn(strings.NewReader("s3cret-password\n"))
	require.NoError(t, hashPasswordCmd.RunE(hashPasswordCmd, nil))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-password")))

	assert.Error(t, hashPasswordCmd.RunE(hashPasswordCmd, []string{"short"}))
}

func TestMigrateDownRejectsBadSteps(t *testing.T) {
	assert.Error(t, migrateDownCmd.RunE(migrateDownCmd, []string{"zero"}))
	assert.Error(t, migrateDownCmd.RunE(migrateDownCmd, []string{"-2"}))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed", "hash-password", "version"} {
		assert.True(t, names[want], want)
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/folio/internal/folio/service"
)

func TestGeneratePassword_SatisfiesPolicy(t *testing.T) {
	policy := service.DefaultPasswordPolicy()
	seen := map[string]bool{}
	for range 5 {
		pw, err := generatePassword(policy, "admin@example.com", "Site Admin")
		require.NoError(t, err)
		require.Len(t, pw, 24)
		require.True(t, policy.Evaluate(pw).Valid)
		require.False(t, seen[pw])
		seen[pw] = true
	}
}

func TestRun_RequiresEmail(t *testing.T) {
	require.ErrorContains(t, run("", "", "", "x"), "-email")
}

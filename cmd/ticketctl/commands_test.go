package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sla-engine/internal/auth"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

func TestTokenCmd_IssuesVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "u-42", "--role", "team_lead", "--secret", "s3cret"})
	require.NoError(t, root.Execute())

	token := strings.SplitN(out.String(), "\n", 2)[0]
	actor, err := auth.NewTokenManager("s3cret", 0).ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{ID: "u-42", Role: domain.RoleTeamLead}, actor)
}

func TestTokenCmd_RejectsUnknownRole(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--user", "u-42", "--role", "owner", "--secret", "s3cret"})
	assert.Error(t, root.Execute())
}

func TestPrintPolicies_SortedTable(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, printPolicies(cmd, []domain.SLAPolicy{
		{ID: "p2", Priority: "MAJOR", ResponseMinutes: 60, ResolutionMinutes: 480},
		{ID: "p1", Priority: "CRITICAL", ResponseMinutes: 30, ResolutionMinutes: 240},
	}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "CRITICAL"))
	assert.Contains(t, lines[1], "240")
}

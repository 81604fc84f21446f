package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityScale_Parse(t *testing.T) {
	p, ok := SeverityScale.Parse(" critical ")
	require.True(t, ok)
	assert.Equal(t, Priority("CRITICAL"), p)

	_, ok = SeverityScale.Parse("URGENT")
	assert.False(t, ok, "urgency level must not parse under the severity scale")

	p, ok = UrgencyScale.Parse("urgent")
	require.True(t, ok)
	assert.Equal(t, 3, UrgencyScale.Rank(p))
}

func TestScaleByName(t *testing.T) {
	s, err := ScaleByName("")
	require.NoError(t, err)
	assert.Equal(t, SeverityScale.Name, s.Name)

	_, err = ScaleByName("colors")
	assert.Error(t, err)
}

func TestRole_Gates(t *testing.T) {
	assert.False(t, RoleRequester.AtLeast(RoleAgent))
	assert.True(t, RoleAgent.AtLeast(RoleAgent))
	assert.False(t, RoleAgent.Elevated())
	assert.True(t, RoleTeamLead.Elevated())
	assert.True(t, RoleAdmin.Elevated())
	assert.False(t, Role("GUEST").AtLeast(RoleRequester))
}

func TestTicketClone_IsDeep(t *testing.T) {
	dept := "d1"
	prio := Priority("MAJOR")
	due := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	orig := &Ticket{ID: "t1", DepartmentID: &dept, Priority: &prio, ResolutionDueAt: &due}

	c := orig.Clone()
	*c.DepartmentID = "d2"
	*c.Priority = "MINOR"
	*c.ResolutionDueAt = due.Add(time.Hour)

	assert.Equal(t, "d1", *orig.DepartmentID)
	assert.Equal(t, Priority("MAJOR"), *orig.Priority)
	assert.Equal(t, due, *orig.ResolutionDueAt)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, TicketStatusClosed.IsTerminal())
	assert.True(t, TicketStatusCanceled.IsTerminal())
	assert.False(t, TicketStatusResolved.IsTerminal())
	assert.True(t, TicketStatusResolved.StopsSLAClock())
	assert.False(t, TicketStatusInProgress.StopsSLAClock())
}

func TestUserLabel(t *testing.T) {
	u := &User{Name: "Aye Aye", Email: "aye@example.com"}
	assert.Equal(t, "Aye Aye (aye@example.com)", u.Label())
	assert.Equal(t, "Min", (&User{Name: "Min"}).Label())
	assert.Equal(t, "", (*User)(nil).Label())
}

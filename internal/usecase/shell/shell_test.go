package shell

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
	"ordito/internal/usecase/fakegw"
)

var daily = domain.CronPattern{Expression: "0 0 9 * * *"}

func newTestShell(t *testing.T, policy OrphanPolicy) (*Shell, *fakegw.Gateway, *eventbus.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := fakegw.New()
	bus := eventbus.New(logger, eventbus.WithSyncDelivery())
	s := New(gw, bus, policy, logger)
	t.Cleanup(func() {
		s.Close()
		bus.Close()
	})
	return s, gw, bus
}

// seed creates group A with commands a1, a2 and group B with b1, plus one
// schedule per target.
func seed(t *testing.T, s *Shell) (a, a1, b string) {
	t.Helper()
	ctx := context.Background()
	var err error
	a, err = s.Entities.CreateGroup(ctx, "A")
	require.NoError(t, err)
	a1, err = s.Entities.AddCommand(ctx, a, domain.CommandInput{Label: "a1", Cmd: "echo a1"})
	require.NoError(t, err)
	_, err = s.Entities.AddCommand(ctx, a, domain.CommandInput{Label: "a2", Cmd: "echo a2"})
	require.NoError(t, err)
	b, err = s.Entities.CreateGroup(ctx, "B")
	require.NoError(t, err)

	_, err = s.Schedules.Add(ctx, domain.GroupTarget{GroupID: a}, daily, nil)
	require.NoError(t, err)
	_, err = s.Schedules.Add(ctx, domain.CommandTarget{GroupID: a, CommandID: a1}, daily, nil)
	require.NoError(t, err)
	_, err = s.Schedules.Add(ctx, domain.GroupTarget{GroupID: b}, daily, nil)
	require.NoError(t, err)
	return a, a1, b
}

func TestParseOrphanPolicy(t *testing.T) {
	p, err := ParseOrphanPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OrphanCascade, p)

	p, err = ParseOrphanPolicy("keep")
	require.NoError(t, err)
	assert.Equal(t, OrphanKeep, p)

	_, err = ParseOrphanPolicy("reject")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteGroupCascades(t *testing.T) {
	s, _, _ := newTestShell(t, OrphanCascade)
	a, _, b := seed(t, s)

	require.NoError(t, s.DeleteGroup(context.Background(), a))

	list := s.Schedules.List()
	require.Len(t, list, 1)
	assert.Equal(t, b, list[0].Target.TargetGroupID())
	assert.Empty(t, s.Orphans())
}

func TestDeleteCommandCascadesOnlyItsSchedules(t *testing.T) {
	s, _, _ := newTestShell(t, OrphanCascade)
	a, a1, _ := seed(t, s)

	require.NoError(t, s.DeleteCommand(context.Background(), a, a1))

	assert.Len(t, s.Schedules.List(), 2)
	assert.Len(t, s.Schedules.ByGroup(a), 1)
	assert.Empty(t, s.Schedules.ByCommand(a, a1))
}

func TestKeepPolicyReportsOrphans(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanKeep)
	a, a1, _ := seed(t, s)

	require.NoError(t, s.DeleteCommand(context.Background(), a, a1))
	orphans := s.Orphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, "A → [Unknown Command] (0 0 9 * * *)", orphans[0].DisplayName)

	require.NoError(t, s.DeleteGroup(context.Background(), a))
	orphans = s.Orphans()
	require.Len(t, orphans, 2)
	for _, o := range orphans {
		assert.Equal(t, "[Unknown Group] (0 0 9 * * *)", o.DisplayName)
	}
	assert.Zero(t, gw.Calls("DeleteSchedule"))
}

func TestCascadeErrorsAreJoined(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanCascade)
	a, _, _ := seed(t, s)
	gw.Reject("DeleteSchedule", "locked")

	err := s.DeleteGroup(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	_, stillMirrored := s.Entities.Group(a)
	assert.False(t, stillMirrored, "the group delete itself was confirmed")
	assert.Len(t, s.Orphans(), 2)
}

func TestRejectedGroupDeleteDoesNotCascade(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanCascade)
	a, _, _ := seed(t, s)
	gw.Reject("DeleteGroup", "Group not found")

	assert.EqualError(t, s.DeleteGroup(context.Background(), a), "Group not found")
	assert.Len(t, s.Schedules.List(), 3)
	assert.Zero(t, gw.Calls("DeleteSchedule"))
}

func TestScheduleFiredRefreshesMirror(t *testing.T) {
	s, gw, bus := newTestShell(t, OrphanCascade)
	ctx := context.Background()
	a, _, _ := seed(t, s)

	sch := s.Schedules.ByGroup(a)[0]
	fired := sch.Clone()
	fired.ExecutionCount = 1
	fired.NextExecution = gw.Now.Add(24 * time.Hour)
	gw.SetSchedule(fired)

	payload, err := json.Marshal(domain.ScheduleFired{ScheduleID: sch.ID, Summary: domain.SummaryAllSuccess, ExecutionCount: 1, IsActive: true})
	require.NoError(t, err)
	bus.Publish(ctx, domain.Event{Type: domain.EventScheduleFired, Payload: payload})

	got, ok := s.Schedules.Get(sch.ID)
	require.True(t, ok)
	assert.Equal(t, uint(1), got.ExecutionCount)
	assert.Equal(t, gw.Now.Add(24*time.Hour), got.NextExecution)
}

func TestImportDataReloadsOnce(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanCascade)

	_, err := s.ImportData(context.Background(), `{"groups":{}}`)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.Calls("GetGroups"))
	assert.Equal(t, 1, gw.Calls("GetSchedules"))
}

func TestImportDataRefreshesSchedules(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanCascade)
	gw.SetSchedule(domain.Schedule{ID: "imported", Target: domain.GroupTarget{GroupID: "g"}, Pattern: daily, IsActive: true})

	_, err := s.ImportData(context.Background(), `{"groups":{}}`)
	require.NoError(t, err)
	_, ok := s.Schedules.Get("imported")
	assert.True(t, ok)
}

func TestViewAppliesSearch(t *testing.T) {
	s, _, _ := newTestShell(t, OrphanCascade)
	seed(t, s)

	s.Search.SetQuery("a2")
	v := s.View()
	require.Len(t, v.Groups, 1)
	assert.Len(t, v.Groups[0].Commands, 1)
	assert.Equal(t, 2, v.Stats.TotalGroups)
	assert.Equal(t, 1, v.Stats.FoundCommands)
}

func TestLoad(t *testing.T) {
	s, gw, _ := newTestShell(t, OrphanKeep)
	gw.SeedGroup(domain.CommandGroup{ID: "g", Title: "G"})
	gw.SetSchedule(domain.Schedule{ID: "s", Target: domain.GroupTarget{GroupID: "g"}, Pattern: daily})

	require.NoError(t, s.Load(context.Background()))
	assert.Len(t, s.Entities.Groups(), 1)
	infos := s.ScheduleInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, "Group: G (0 0 9 * * *)", infos[0].DisplayName)
	assert.Equal(t, OrphanKeep, s.Policy())
}

package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
	"ordito/internal/usecase/fakegw"
)

func newTestEngine(t *testing.T) (*Engine, *fakegw.Gateway) {
	t.Helper()
	gw := fakegw.New()
	return New(gw, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), gw
}

func uintPtr(v uint) *uint { return &v }

var weekdaysAtNine = domain.CronPattern{Expression: "0 0 9 * * 1,2,3,4,5"}

func TestAddMirrorsRemoteNextExecution(t *testing.T) {
	e, gw := newTestEngine(t)

	id, err := e.Add(context.Background(), domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)
	require.NoError(t, err)

	s, ok := e.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.ScheduleActive, s.State())
	assert.Equal(t, gw.Now.Add(time.Hour), s.NextExecution)
	assert.Equal(t, "0 0 9 * * 1,2,3,4,5", s.Expression())
	assert.Equal(t, 1, gw.Calls("ValidateCronExpression"))
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		target  domain.ScheduleTarget
		pattern domain.SchedulePattern
		max     *uint
		want    error
	}{
		{"no target", nil, weekdaysAtNine, nil, domain.ErrInvalidInput},
		{"empty group", domain.GroupTarget{}, weekdaysAtNine, nil, domain.ErrInvalidInput},
		{"empty command", domain.CommandTarget{GroupID: "g1"}, weekdaysAtNine, nil, domain.ErrInvalidInput},
		{"calendar", domain.GroupTarget{GroupID: "g1"}, domain.CalendarPattern{At: time.Now()}, nil, domain.ErrUnsupportedPattern},
		{"five fields", domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 9 * * *"}, nil, domain.ErrInvalidInput},
		{"step syntax", domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 */5 * * * *"}, nil, domain.ErrInvalidInput},
		{"range syntax", domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 0 9 * * 1-5"}, nil, domain.ErrInvalidInput},
		{"hour out of range", domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 0 24 * * *"}, nil, domain.ErrInvalidInput},
		{"zero max", domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, uintPtr(0), domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, gw := newTestEngine(t)
			_, err := e.Add(context.Background(), tt.target, tt.pattern, tt.max)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidationError(err))
			assert.Zero(t, gw.Calls("ValidateCronExpression"))
			assert.Zero(t, gw.Calls("CreateSchedule"))
		})
	}
}

func TestAddSendsNormalForm(t *testing.T) {
	e, gw := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 0 9 * * 5,1,5"}, nil)
	require.NoError(t, err)
	s, _ := e.Get(id)
	assert.Equal(t, "0 0 9 * * 1,5", s.Expression())

	err = e.Update(ctx, id, domain.SchedulePatch{Pattern: domain.CronPattern{Expression: "0 0 9 * * 0,1,2,3,4,5,6"}})
	require.NoError(t, err)
	s, _ = e.Get(id)
	assert.Equal(t, "0 0 9 * * *", s.Expression())
	assert.Equal(t, 2, gw.Calls("ValidateCronExpression"))
}

func TestAddRejectedByValidator(t *testing.T) {
	e, gw := newTestEngine(t)
	gw.Invalid["0 0 0 30 2 *"] = "no such date"

	_, err := e.Add(context.Background(), domain.GroupTarget{GroupID: "g1"}, domain.CronPattern{Expression: "0 0 0 30 2 *"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such date")
	assert.Equal(t, domain.CodeScheduleInvalid, domain.ErrorCodeOf(err))
	assert.Zero(t, gw.Calls("CreateSchedule"))
	assert.Empty(t, e.List())
}

func TestAddGatewayErrorUnchanged(t *testing.T) {
	e, gw := newTestEngine(t)
	gw.Reject("CreateSchedule", "Group with ID 'g9' not found")

	_, err := e.Add(context.Background(), domain.GroupTarget{GroupID: "g9"}, weekdaysAtNine, nil)
	assert.EqualError(t, err, "Group with ID 'g9' not found")
	assert.Empty(t, e.List())
}

func TestAddKeepsProvisionalEntryWhenReloadFails(t *testing.T) {
	e, gw := newTestEngine(t)
	gw.Fail("GetSchedules", errors.New("offline"))

	id, err := e.Add(context.Background(), domain.CommandTarget{GroupID: "g1", CommandID: "c1"}, weekdaysAtNine, uintPtr(2))
	require.NoError(t, err)

	s, ok := e.Get(id)
	require.True(t, ok)
	assert.True(t, s.IsActive)
	assert.True(t, s.NextExecution.IsZero())
	assert.Equal(t, uint(2), *s.MaxExecutions)
}

func TestUpdateMergesPatch(t *testing.T) {
	e, gw := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, uintPtr(3))
	require.NoError(t, err)

	err = e.Update(ctx, id, domain.SchedulePatch{Pattern: domain.CronPattern{Expression: "0 30 8 * * *"}})
	require.NoError(t, err)

	s, _ := e.Get(id)
	assert.Equal(t, "0 30 8 * * *", s.Expression())
	assert.Equal(t, domain.GroupTarget{GroupID: "g1"}, s.Target)
	require.NotNil(t, s.MaxExecutions)
	assert.Equal(t, uint(3), *s.MaxExecutions)
	assert.Equal(t, gw.Now.Add(2*time.Hour), s.NextExecution)

	require.NoError(t, e.Update(ctx, id, domain.SchedulePatch{ClearMax: true}))
	s, _ = e.Get(id)
	assert.Nil(t, s.MaxExecutions)
}

func TestUpdateUnknownIsNoop(t *testing.T) {
	e, gw := newTestEngine(t)
	require.NoError(t, e.Update(context.Background(), "missing", domain.SchedulePatch{}))
	assert.Zero(t, gw.Calls("UpdateSchedule"))
}

func TestUpdateRejectionLeavesMirror(t *testing.T) {
	e, gw := newTestEngine(t)
	ctx := context.Background()
	id, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)
	before := e.List()

	gw.Reject("UpdateSchedule", "Schedule not found")
	err := e.Update(ctx, id, domain.SchedulePatch{Pattern: domain.CronPattern{Expression: "0 0 1 * * *"}})
	assert.EqualError(t, err, "Schedule not found")
	assert.Equal(t, before, e.List())
}

func TestToggleInvolution(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)

	active, err := e.Toggle(ctx, id)
	require.NoError(t, err)
	assert.False(t, active)
	state, _ := e.State(id)
	assert.Equal(t, domain.SchedulePaused, state)

	active, err = e.Toggle(ctx, id)
	require.NoError(t, err)
	assert.True(t, active)
	state, _ = e.State(id)
	assert.Equal(t, domain.ScheduleActive, state)
}

func TestExhaustedScheduleRejectsToggle(t *testing.T) {
	e, gw := newTestEngine(t)
	ctx := context.Background()
	gw.SetSchedule(domain.Schedule{
		ID:             "s1",
		Target:         domain.GroupTarget{GroupID: "g1"},
		Pattern:        weekdaysAtNine,
		IsActive:       false,
		ExecutionCount: 3,
		MaxExecutions:  uintPtr(3),
	})
	require.NoError(t, e.Refresh(ctx))

	state, ok := e.State("s1")
	require.True(t, ok)
	assert.Equal(t, domain.ScheduleExhausted, state)

	_, err := e.Toggle(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrExhausted)
	assert.Equal(t, domain.CodeExhausted, domain.ErrorCodeOf(err))
	assert.Zero(t, gw.Calls("ToggleSchedule"))

	_, stillThere := e.Get("s1")
	assert.True(t, stillThere)
}

func TestToggleUnknownIsNoop(t *testing.T) {
	e, gw := newTestEngine(t)
	active, err := e.Toggle(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, gw.Calls("ToggleSchedule"))
}

func TestDelete(t *testing.T) {
	e, gw := newTestEngine(t)
	ctx := context.Background()
	a, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)
	b, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g2"}, weekdaysAtNine, nil)

	gw.Reject("DeleteSchedule", "busy")
	assert.EqualError(t, e.Delete(ctx, a), "busy")
	assert.Len(t, e.List(), 2)

	gw.Fail("DeleteSchedule", nil)
	require.NoError(t, e.Delete(ctx, a))
	list := e.List()
	require.Len(t, list, 1)
	assert.Equal(t, b, list[0].ID)
}

func TestQueriesByTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	g, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)
	c, _ := e.Add(ctx, domain.CommandTarget{GroupID: "g1", CommandID: "c1"}, weekdaysAtNine, nil)
	_, _ = e.Add(ctx, domain.CommandTarget{GroupID: "g2", CommandID: "c1"}, weekdaysAtNine, nil)

	byGroup := e.ByGroup("g1")
	require.Len(t, byGroup, 2)
	assert.Equal(t, g, byGroup[0].ID)
	assert.Equal(t, c, byGroup[1].ID)

	byCmd := e.ByCommand("g1", "c1")
	require.Len(t, byCmd, 1)
	assert.Equal(t, c, byCmd[0].ID)
}

type lookup map[string]domain.CommandGroup

func (l lookup) Group(id string) (domain.CommandGroup, bool) {
	g, ok := l[id]
	return g, ok
}

func TestInfos(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, _ := e.Add(ctx, domain.GroupTarget{GroupID: "g1"}, weekdaysAtNine, nil)

	groups := lookup{"g1": {ID: "g1", Title: "Deploy"}}
	infos := e.Infos(groups)
	require.Len(t, infos, 1)
	assert.Equal(t, "Group: Deploy (0 0 9 * * 1,2,3,4,5)", infos[0].DisplayName)

	info, ok := e.Info(id, lookup{})
	require.True(t, ok)
	assert.True(t, info.Orphaned)
}

func TestValidate(t *testing.T) {
	e, gw := newTestEngine(t)

	_, err := e.Validate(context.Background(), "0 9 * * *")
	assert.True(t, domain.IsValidationError(err))
	assert.Zero(t, gw.Calls("ValidateCronExpression"))

	v, err := e.Validate(context.Background(), "0 0 9 * * *")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Len(t, v.NextExecutions, 5)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
	"ordito/internal/usecase/fakegw"
)

// newLoopback serves gw over a real socket and returns a connected client.
func newLoopback(t *testing.T, gw domain.RemoteGateway, bus domain.EventBus) (*Client, *Server) {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", testLogger())
	RegisterHandlers(srv, gw)
	runServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := Dial(ctx, ClientConfig{
		URL:            "ws://" + srv.BoundAddr() + "/ws",
		Token:          testToken,
		RequestTimeout: 2 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, srv
}

func TestHandlerGroupLifecycle(t *testing.T) {
	gw := fakegw.New()
	client, _ := newLoopback(t, gw, nil)
	ctx := context.Background()

	id, err := client.CreateGroup(ctx, "Ops")
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	cmdID, err := client.AddCommand(ctx, id, domain.CommandInput{Label: "disk", Cmd: "df -h", Detached: true})
	require.NoError(t, err)
	assert.Equal(t, "c1", cmdID)

	require.NoError(t, client.UpdateGroup(ctx, id, "Operations"))
	require.NoError(t, client.UpdateCommand(ctx, id, cmdID, domain.CommandInput{Label: "disk", Cmd: "df -k"}))

	groups, err := client.GetGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Operations", groups[0].Title)
	require.Len(t, groups[0].Commands, 1)
	assert.Equal(t, "df -k", groups[0].Commands[0].Cmd)
	assert.False(t, groups[0].Commands[0].Detached)

	require.NoError(t, client.DeleteCommand(ctx, id, cmdID))
	require.NoError(t, client.DeleteGroup(ctx, id))

	groups, err = client.GetGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestHandlerRemoteRejection(t *testing.T) {
	gw := fakegw.New()
	client, _ := newLoopback(t, gw, nil)

	err := client.UpdateGroup(context.Background(), "missing", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGateway))
	assert.Equal(t, "Group not found", err.Error())

	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, MethodGroupUpdate, gerr.Method)
}

func TestHandlerMissingIDIsInvalidPayload(t *testing.T) {
	gw := fakegw.New()
	client, _ := newLoopback(t, gw, nil)

	err := client.DeleteSchedule(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrRPCInvalidPayload.Error(), err.Error())
	assert.Equal(t, 0, gw.Calls("DeleteSchedule"))
}

func TestHandlerExecution(t *testing.T) {
	gw := fakegw.New()
	gw.Outputs["false"] = domain.FailureEntry("", "exit status 1")
	gw.SeedGroup(domain.CommandGroup{ID: "g1", Title: "Ops", Commands: []domain.Command{
		{ID: "c1", Label: "ok", Cmd: "true"},
		{ID: "c2", Label: "bad", Cmd: "false"},
	}})
	client, _ := newLoopback(t, gw, nil)
	ctx := context.Background()

	out, err := client.ExecuteCommand(ctx, "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)

	_, err = client.ExecuteCommand(ctx, "false")
	require.Error(t, err)
	assert.Equal(t, "exit status 1", err.Error())

	out, err = client.ExecuteCommandDetached(ctx, "sleep 10")
	require.NoError(t, err)
	assert.Equal(t, "Process started successfully in background", out)

	entries, err := client.ExecuteGroupCommands(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.SuccessEntry("ok", "true"), entries[0])
	assert.True(t, entries[1].Failed)
	assert.Equal(t, domain.SummaryMixed, domain.Summarize(entries))
}

func TestHandlerScheduleLifecycle(t *testing.T) {
	gw := fakegw.New()
	gw.SeedGroup(domain.CommandGroup{ID: "g1", Title: "Ops", Commands: []domain.Command{{ID: "c1", Label: "disk", Cmd: "df"}}})
	client, _ := newLoopback(t, gw, nil)
	ctx := context.Background()

	limit := uint(3)
	id, err := client.CreateSchedule(ctx, domain.ScheduleSpec{
		Target:        domain.CommandTarget{GroupID: "g1", CommandID: "c1"},
		Expression:    "0 */5 * * * *",
		MaxExecutions: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	schedules, err := client.GetSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	s := schedules[0]
	assert.Equal(t, domain.CommandTarget{GroupID: "g1", CommandID: "c1"}, s.Target)
	assert.Equal(t, "0 */5 * * * *", s.Expression())
	require.NotNil(t, s.MaxExecutions)
	assert.Equal(t, uint(3), *s.MaxExecutions)
	assert.True(t, s.NextExecution.Equal(gw.Now.Add(time.Hour)))

	active, err := client.ToggleSchedule(ctx, id)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, client.UpdateSchedule(ctx, id, domain.ScheduleSpec{
		Target:     domain.GroupTarget{GroupID: "g1"},
		Expression: "0 0 9 * * 1",
	}))
	schedules, err = client.GetSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupTarget{GroupID: "g1"}, schedules[0].Target)
	assert.Nil(t, schedules[0].MaxExecutions)
	assert.True(t, schedules[0].IsActive)

	require.NoError(t, client.DeleteSchedule(ctx, id))
	schedules, err = client.GetSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestHandlerValidateCron(t *testing.T) {
	gw := fakegw.New()
	gw.Invalid["bogus"] = "expected exactly 6 fields"
	client, _ := newLoopback(t, gw, nil)
	ctx := context.Background()

	v, err := client.ValidateCronExpression(ctx, "0 0 * * * *")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Len(t, v.NextExecutions, 5)

	v, err = client.ValidateCronExpression(ctx, "bogus")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, "expected exactly 6 fields", v.ErrorMessage)
	assert.Empty(t, v.NextExecutions)
}

func TestHandlerData(t *testing.T) {
	gw := fakegw.New()
	client, _ := newLoopback(t, gw, nil)
	ctx := context.Background()

	msg, err := client.ExportData(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "Data exported to: ")

	msg, err = client.ImportData(ctx, `{"groups":{}}`)
	require.NoError(t, err)
	assert.Equal(t, "Data imported successfully (0 added, 0 skipped)", msg)
}

func TestClientReceivesEvents(t *testing.T) {
	bus := eventbus.New(testLogger(), eventbus.WithSyncDelivery())
	defer bus.Close()
	gw := fakegw.New()
	client, srv := newLoopback(t, gw, bus)

	got := make(chan domain.Event, 1)
	client.OnEvent(func(ctx context.Context, event domain.Event) {
		// Handlers may call back into the client.
		_, err := client.GetGroups(ctx)
		assert.NoError(t, err)
		got <- event
	})
	waitForConnections(t, srv, 1)

	eventbus.Emit(context.Background(), bus, domain.EventScheduleFired, domain.ScheduleFired{ScheduleID: "s9"})

	select {
	case event := <-got:
		assert.Equal(t, domain.EventScheduleFired, event.Type)
		var fired domain.ScheduleFired
		require.NoError(t, event.Decode(&fired))
		assert.Equal(t, "s9", fired.ScheduleID)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestClientDialErrors(t *testing.T) {
	srv := NewServer(nil, newTestAuth(), "127.0.0.1:0", testLogger())
	runServer(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := Dial(ctx, ClientConfig{URL: "ws://" + srv.BoundAddr() + "/ws", Token: "wrong"}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Equal(t, domain.CodeGatewayAuth, domain.ErrorCodeOf(err))

	_, err = Dial(ctx, ClientConfig{URL: "ws://127.0.0.1:1/ws", Token: testToken}, testLogger())
	require.Error(t, err)
	assert.Equal(t, domain.CodeGatewayOpen, domain.ErrorCodeOf(err))
}

func TestClientClosedConnection(t *testing.T) {
	gw := fakegw.New()
	client, srv := newLoopback(t, gw, nil)
	require.NoError(t, srv.Stop(context.Background()))

	require.Eventually(t, func() bool {
		_, err := client.GetGroups(context.Background())
		return errors.Is(err, domain.ErrUnavailable)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClientBreakerOpensOnTransportFailures(t *testing.T) {
	gw := fakegw.New()
	client, srv := newLoopback(t, gw, nil)
	require.NoError(t, srv.Stop(context.Background()))

	// Closed-connection failures count toward the breaker; once open the
	// error still reports the gateway as unavailable.
	for i := 0; i < int(defaultCBMaxFailures)+1; i++ {
		_, err := client.GetGroups(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnavailable))
	}
	assert.Equal(t, "open", client.breaker.State().String())
}

func TestClientRejectionsKeepBreakerClosed(t *testing.T) {
	gw := fakegw.New()
	client, _ := newLoopback(t, gw, nil)

	for i := 0; i < int(defaultCBMaxFailures)+2; i++ {
		err := client.DeleteGroup(context.Background(), "nope")
		require.Error(t, err)
	}
	assert.Equal(t, "closed", client.breaker.State().String())
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	h := decode(func(_ context.Context, req groupRequest) (any, error) {
		return idResponse{ID: req.Title}, nil
	})

	_, err := h(context.Background(), &ClientInfo{Name: "test"}, json.RawMessage(`{"title":`))
	assert.ErrorIs(t, err, domain.ErrRPCInvalidPayload)

	out, err := h(context.Background(), &ClientInfo{Name: "test"}, json.RawMessage(`{"title":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x"}`, string(out))
}

func TestClientReadOnlyToken(t *testing.T) {
	gw := fakegw.New()
	auth := NewStaticTokenAuth([]TokenEntry{{Token: "viewer", Name: "dashboard", ReadOnly: true}})
	srv := NewServer(nil, auth, "127.0.0.1:0", testLogger())
	RegisterHandlers(srv, gw)
	runServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := Dial(ctx, ClientConfig{URL: "ws://" + srv.BoundAddr() + "/ws", Token: "viewer", RequestTimeout: 2 * time.Second}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.GetGroups(ctx)
	require.NoError(t, err)

	_, err = client.CreateGroup(ctx, "Ops")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.CodeForbidden, domain.ErrorCodeOf(err))

	groups, err := gw.GetGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

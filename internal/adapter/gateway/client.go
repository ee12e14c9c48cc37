package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"ordito/internal/domain"
	"ordito/internal/infra/tracer"
)

// Default client settings.
const (
	defaultRequestTimeout = 60 * time.Second
	defaultCBMaxFailures  = uint32(5)
	defaultCBTimeout      = 30 * time.Second
	defaultCBInterval     = 60 * time.Second
	maxMessageSize        = 8 << 20
	eventQueueSize        = 64
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL            string        // ws://host:port/ws
	Token          string        // sent as a bearer token
	RequestTimeout time.Duration // per call, default 60s
	MaxFailures    uint32        // consecutive transport failures before the breaker opens, default 5
	BreakerTimeout time.Duration // open-state duration, default 30s
}

var _ domain.RemoteGateway = (*Client)(nil)

// Client is a domain.RemoteGateway backed by a gateway Server. Remote
// rejections come back as *domain.GatewayError carrying the remote message.
// Transport failures trip a circuit breaker.
type Client struct {
	ws      *websocket.Conn
	config  ClientConfig
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	logger  *slog.Logger

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan Frame

	handlersMu sync.RWMutex
	handlers   []domain.EventHandler
	events     chan domain.Event

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to a gateway server.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaultCBTimeout
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	ws, resp, err := websocket.Dial(ctx, cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.NewSubSystemError("gateway", "gateway.Dial", domain.ErrGatewayAuthFailed, "token rejected")
		}
		return nil, domain.NewSubSystemError("gateway", "gateway.Dial", domain.ErrUnavailable, err.Error())
	}
	ws.SetReadLimit(maxMessageSize)

	c := &Client{
		ws:      ws,
		config:  cfg,
		logger:  logger,
		pending: make(map[uint64]chan Frame),
		events:  make(chan domain.Event, eventQueueSize),
		done:    make(chan struct{}),
	}
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "gateway:" + cfg.URL,
		MaxRequests: 1,
		Interval:    defaultCBInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A rejection proves the remote side is up.
			var gerr *domain.GatewayError
			return err == nil || errors.As(err, &gerr) || errors.Is(err, domain.ErrForbidden)
		},
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.eventLoop()

	logger.Debug("gateway client connected", "url", cfg.URL)
	return c, nil
}

// OnEvent registers a handler for events forwarded by the server. Handlers
// run on a dedicated goroutine and may call back into the client.
func (c *Client) OnEvent(handler domain.EventHandler) {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersMu.Unlock()
}

// Close closes the connection and waits for the background loops.
func (c *Client) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	c.shutdown()
	c.wg.Wait()
	return err
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		var frame Frame
		if err := wsjson.Read(context.Background(), c.ws, &frame); err != nil {
			c.logger.Debug("gateway client read loop ended", "error", err)
			return
		}

		switch frame.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		case FrameTypeEvent:
			var event domain.Event
			if err := json.Unmarshal(frame.Payload, &event); err != nil {
				c.logger.Warn("gateway client: malformed event", "error", err)
				continue
			}
			select {
			case c.events <- event:
			default:
				c.logger.Warn("gateway client: dropped event", "event", event.Type)
			}
		}
	}
}

func (c *Client) eventLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event := <-c.events:
			c.handlersMu.RLock()
			handlers := append([]domain.EventHandler(nil), c.handlers...)
			c.handlersMu.RUnlock()
			for _, h := range handlers {
				h(context.Background(), event)
			}
		}
	}
}

// call runs one RPC through the breaker inside a gateway.<method> span and
// decodes the result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, req, out any) (err error) {
	ctx, span := tracer.StartRPC(ctx, method)
	defer func() { tracer.End(span, err) }()

	payload, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.roundTrip(ctx, method, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewSubSystemError("gateway", "Client."+method, domain.ErrUnavailable, err.Error())
		}
		return err
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("gateway: decode %s result: %w", method, errors.Join(domain.ErrRPCInvalidPayload, err))
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, req any) (json.RawMessage, error) {
	var payload json.RawMessage
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s request: %w", method, err)
		}
		payload = data
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	id := c.nextID.Add(1)
	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	select {
	case <-c.done:
		forget()
		return nil, domain.NewSubSystemError("gateway", "Client."+method, domain.ErrUnavailable, "connection closed")
	default:
	}

	if err := wsjson.Write(ctx, c.ws, requestFrame(id, method, payload)); err != nil {
		forget()
		return nil, domain.NewSubSystemError("gateway", "Client."+method, domain.ErrUnavailable, err.Error())
	}

	select {
	case resp := <-ch:
		if err := resp.remoteErr(method); err != nil {
			return nil, err
		}
		return resp.Payload, nil
	case <-ctx.Done():
		forget()
		return nil, domain.NewSubSystemError("gateway", "Client."+method, domain.ErrTimeout, ctx.Err().Error())
	case <-c.done:
		forget()
		return nil, domain.NewSubSystemError("gateway", "Client."+method, domain.ErrUnavailable, "connection closed")
	}
}

// --- domain.RemoteGateway ---

// CreateGroup implements domain.GroupGateway.
func (c *Client) CreateGroup(ctx context.Context, title string) (string, error) {
	var resp idResponse
	err := c.call(ctx, MethodGroupCreate, groupRequest{Title: title}, &resp)
	return resp.ID, err
}

// GetGroups implements domain.GroupGateway.
func (c *Client) GetGroups(ctx context.Context) ([]domain.CommandGroup, error) {
	var groups []domain.CommandGroup
	err := c.call(ctx, MethodGroupList, nil, &groups)
	return groups, err
}

// UpdateGroup implements domain.GroupGateway.
func (c *Client) UpdateGroup(ctx context.Context, id, title string) error {
	return c.call(ctx, MethodGroupUpdate, groupRequest{ID: id, Title: title}, nil)
}

// DeleteGroup implements domain.GroupGateway.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.call(ctx, MethodGroupDelete, groupRequest{ID: id}, nil)
}

// AddCommand implements domain.CommandGateway.
func (c *Client) AddCommand(ctx context.Context, groupID string, in domain.CommandInput) (string, error) {
	var resp idResponse
	err := c.call(ctx, MethodCommandAdd, commandRequest{GroupID: groupID, Command: in}, &resp)
	return resp.ID, err
}

// UpdateCommand implements domain.CommandGateway.
func (c *Client) UpdateCommand(ctx context.Context, groupID, commandID string, in domain.CommandInput) error {
	return c.call(ctx, MethodCommandUpdate, commandRequest{GroupID: groupID, CommandID: commandID, Command: in}, nil)
}

// DeleteCommand implements domain.CommandGateway.
func (c *Client) DeleteCommand(ctx context.Context, groupID, commandID string) error {
	return c.call(ctx, MethodCommandDelete, commandRequest{GroupID: groupID, CommandID: commandID}, nil)
}

// ExecuteCommand implements domain.ExecutionGateway.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (string, error) {
	var resp outputResponse
	err := c.call(ctx, MethodExecCommand, execRequest{Cmd: cmd}, &resp)
	return resp.Output, err
}

// ExecuteCommandDetached implements domain.ExecutionGateway.
func (c *Client) ExecuteCommandDetached(ctx context.Context, cmd string) (string, error) {
	var resp outputResponse
	err := c.call(ctx, MethodExecDetached, execRequest{Cmd: cmd}, &resp)
	return resp.Output, err
}

// ExecuteGroupCommands implements domain.ExecutionGateway.
func (c *Client) ExecuteGroupCommands(ctx context.Context, groupID string) ([]domain.ExecutionEntry, error) {
	var entries []domain.ExecutionEntry
	err := c.call(ctx, MethodExecGroup, execRequest{GroupID: groupID}, &entries)
	return entries, err
}

// CreateSchedule implements domain.ScheduleGateway.
func (c *Client) CreateSchedule(ctx context.Context, spec domain.ScheduleSpec) (string, error) {
	var resp idResponse
	err := c.call(ctx, MethodScheduleCreate, scheduleRequest{Spec: &spec}, &resp)
	return resp.ID, err
}

// GetSchedules implements domain.ScheduleGateway.
func (c *Client) GetSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	err := c.call(ctx, MethodScheduleList, nil, &schedules)
	return schedules, err
}

// UpdateSchedule implements domain.ScheduleGateway.
func (c *Client) UpdateSchedule(ctx context.Context, id string, spec domain.ScheduleSpec) error {
	return c.call(ctx, MethodScheduleUpdate, scheduleRequest{ID: id, Spec: &spec}, nil)
}

// DeleteSchedule implements domain.ScheduleGateway.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.call(ctx, MethodScheduleDelete, scheduleRequest{ID: id}, nil)
}

// ToggleSchedule implements domain.ScheduleGateway.
func (c *Client) ToggleSchedule(ctx context.Context, id string) (bool, error) {
	var resp toggleResponse
	err := c.call(ctx, MethodScheduleToggle, scheduleRequest{ID: id}, &resp)
	return resp.IsActive, err
}

// ValidateCronExpression implements domain.ScheduleGateway.
func (c *Client) ValidateCronExpression(ctx context.Context, expr string) (domain.CronValidation, error) {
	var v domain.CronValidation
	err := c.call(ctx, MethodScheduleValidate, validateRequest{Expression: expr}, &v)
	return v, err
}

// ExportData implements domain.DataGateway.
func (c *Client) ExportData(ctx context.Context) (string, error) {
	var resp messageResponse
	err := c.call(ctx, MethodDataExport, nil, &resp)
	return resp.Message, err
}

// ImportData implements domain.DataGateway.
func (c *Client) ImportData(ctx context.Context, jsonText string) (string, error) {
	var resp messageResponse
	err := c.call(ctx, MethodDataImport, importRequest{JSON: jsonText}, &resp)
	return resp.Message, err
}

package gateway

import (
	"context"
	"encoding/json"

	"ordito/internal/domain"
)

// RPC method names.
const (
	MethodGroupCreate      = "group.create"
	MethodGroupList        = "group.list"
	MethodGroupUpdate      = "group.update"
	MethodGroupDelete      = "group.delete"
	MethodCommandAdd       = "command.add"
	MethodCommandUpdate    = "command.update"
	MethodCommandDelete    = "command.delete"
	MethodExecCommand      = "exec.command"
	MethodExecDetached     = "exec.detached"
	MethodExecGroup        = "exec.group"
	MethodScheduleCreate   = "schedule.create"
	MethodScheduleList     = "schedule.list"
	MethodScheduleUpdate   = "schedule.update"
	MethodScheduleDelete   = "schedule.delete"
	MethodScheduleToggle   = "schedule.toggle"
	MethodScheduleValidate = "schedule.validate"
	MethodDataExport       = "data.export"
	MethodDataImport       = "data.import"
)

// --- wire types shared by the handlers and the client ---

type idResponse struct {
	ID string `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type outputResponse struct {
	Output string `json:"output"`
}

type groupRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

type commandRequest struct {
	GroupID   string              `json:"group_id"`
	CommandID string              `json:"command_id,omitempty"`
	Command   domain.CommandInput `json:"command"`
}

type execRequest struct {
	Cmd     string `json:"cmd,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

type scheduleRequest struct {
	ID   string               `json:"id,omitempty"`
	Spec *domain.ScheduleSpec `json:"spec,omitempty"`
}

type toggleResponse struct {
	IsActive bool `json:"is_active"`
}

type validateRequest struct {
	Expression string `json:"cron_expression"`
}

type importRequest struct {
	JSON string `json:"json"`
}

// RegisterHandlers registers an RPC handler for every RemoteGateway operation.
func RegisterHandlers(s *Server, gw domain.RemoteGateway) {
	s.RegisterHandler(MethodGroupCreate, decode(func(ctx context.Context, req groupRequest) (any, error) {
		id, err := gw.CreateGroup(ctx, req.Title)
		return idResponse{ID: id}, err
	}))
	s.RegisterHandler(MethodGroupList, func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		groups, err := gw.GetGroups(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(groups)
	})
	s.RegisterHandler(MethodGroupUpdate, decode(func(ctx context.Context, req groupRequest) (any, error) {
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.UpdateGroup(ctx, req.ID, req.Title)
	}))
	s.RegisterHandler(MethodGroupDelete, decode(func(ctx context.Context, req groupRequest) (any, error) {
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.DeleteGroup(ctx, req.ID)
	}))

	s.RegisterHandler(MethodCommandAdd, decode(func(ctx context.Context, req commandRequest) (any, error) {
		id, err := gw.AddCommand(ctx, req.GroupID, req.Command)
		return idResponse{ID: id}, err
	}))
	s.RegisterHandler(MethodCommandUpdate, decode(func(ctx context.Context, req commandRequest) (any, error) {
		if req.CommandID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.UpdateCommand(ctx, req.GroupID, req.CommandID, req.Command)
	}))
	s.RegisterHandler(MethodCommandDelete, decode(func(ctx context.Context, req commandRequest) (any, error) {
		if req.CommandID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.DeleteCommand(ctx, req.GroupID, req.CommandID)
	}))

	s.RegisterHandler(MethodExecCommand, decode(func(ctx context.Context, req execRequest) (any, error) {
		out, err := gw.ExecuteCommand(ctx, req.Cmd)
		return outputResponse{Output: out}, err
	}))
	s.RegisterHandler(MethodExecDetached, decode(func(ctx context.Context, req execRequest) (any, error) {
		out, err := gw.ExecuteCommandDetached(ctx, req.Cmd)
		return outputResponse{Output: out}, err
	}))
	s.RegisterHandler(MethodExecGroup, decode(func(ctx context.Context, req execRequest) (any, error) {
		return gw.ExecuteGroupCommands(ctx, req.GroupID)
	}))

	s.RegisterHandler(MethodScheduleCreate, decode(func(ctx context.Context, req scheduleRequest) (any, error) {
		if req.Spec == nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		id, err := gw.CreateSchedule(ctx, *req.Spec)
		return idResponse{ID: id}, err
	}))
	s.RegisterHandler(MethodScheduleList, func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		schedules, err := gw.GetSchedules(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(schedules)
	})
	s.RegisterHandler(MethodScheduleUpdate, decode(func(ctx context.Context, req scheduleRequest) (any, error) {
		if req.ID == "" || req.Spec == nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.UpdateSchedule(ctx, req.ID, *req.Spec)
	}))
	s.RegisterHandler(MethodScheduleDelete, decode(func(ctx context.Context, req scheduleRequest) (any, error) {
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		return nil, gw.DeleteSchedule(ctx, req.ID)
	}))
	s.RegisterHandler(MethodScheduleToggle, decode(func(ctx context.Context, req scheduleRequest) (any, error) {
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		active, err := gw.ToggleSchedule(ctx, req.ID)
		return toggleResponse{IsActive: active}, err
	}))
	s.RegisterHandler(MethodScheduleValidate, decode(func(ctx context.Context, req validateRequest) (any, error) {
		return gw.ValidateCronExpression(ctx, req.Expression)
	}))

	s.RegisterHandler(MethodDataExport, func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		msg, err := gw.ExportData(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(messageResponse{Message: msg})
	})
	s.RegisterHandler(MethodDataImport, decode(func(ctx context.Context, req importRequest) (any, error) {
		msg, err := gw.ImportData(ctx, req.JSON)
		return messageResponse{Message: msg}, err
	}))
}

// decode adapts a typed handler: it unmarshals the payload into Req and
// marshals a non-nil result.
func decode[Req any](fn func(ctx context.Context, req Req) (any, error)) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		result, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		return json.Marshal(result)
	}
}

package gateway

import (
	"encoding/json"

	"ordito/internal/domain"
)

// FrameType tells requests, responses and pushed events apart.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the single JSON message shape on the socket. ID pairs a response
// with its request; events carry no ID.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"` // domain.ErrorCode of Error
}

func requestFrame(id uint64, method string, payload json.RawMessage) Frame {
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Payload: payload}
}

func responseFrame(id uint64, result json.RawMessage, err error) Frame {
	f := Frame{Type: FrameTypeResponse, ID: id, Payload: result}
	if err != nil {
		f.Error = err.Error()
		f.Code = string(domain.ErrorCodeOf(err))
	}
	return f
}

func eventFrame(event domain.Event) (Frame, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Payload: payload}, nil
}

// remoteErr is the error a caller of method sees for this response, nil on
// success. A refused read-only call keeps its sentinel; every other failure
// is the authority's own message.
func (f Frame) remoteErr(method string) error {
	switch {
	case f.Error == "":
		return nil
	case domain.ErrorCode(f.Code) == domain.CodeForbidden:
		return domain.NewSubSystemError("gateway", "Client."+method, domain.ErrForbidden, "read-only token")
	default:
		return &domain.GatewayError{Method: method, Message: f.Error}
	}
}

// Package natsrpc serves the engine operations as NATS request/reply
// subjects and provides a matching client.
//
// Subjects are <prefix>.size, <prefix>.price, <prefix>.financials and
// <prefix>.quote. Requests and replies are JSON; failures reply with an
// ErrorReply instead of the result.
package natsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Operations served under the subject prefix.
const (
	OpSize       = "size"
	OpPrice      = "price"
	OpFinancials = "financials"
	OpQuote      = "quote"
)

// Error codes carried in ErrorReply.
const (
	CodeBadRequest   = "bad_request"
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal"
)

// Service is the engine surface served over NATS.
type Service interface {
	SizeFacility(ctx context.Context, facility sizing.FacilityInput) (sizing.Result, error)
	PriceEquipment(ctx context.Context, sz sizing.Result, cfg cost.EquipmentConfig) (cost.Breakdown, error)
	ComputeFinancials(ctx context.Context, breakdown cost.Breakdown, rates revenue.TariffInput, params engine.FinancialParams) (engine.FinancialReport, error)
	Quote(ctx context.Context, req engine.QuoteRequest) (engine.Quote, error)
}

// PriceRequest is the payload of the price subject.
type PriceRequest struct {
	Sizing    sizing.Result        `json:"sizing"`
	Equipment cost.EquipmentConfig `json:"equipment,omitempty"`
}

// FinancialsRequest is the payload of the financials subject.
type FinancialsRequest struct {
	Costs     cost.Breakdown         `json:"costs"`
	Rates     revenue.TariffInput    `json:"rates,omitempty"`
	Financial engine.FinancialParams `json:"financial,omitempty"`
}

// ErrorReply is sent in place of a result when an operation fails.
type ErrorReply struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RemoteError is returned by Client when the responder replied with an error.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

// Subject joins prefix and op.
func Subject(prefix, op string) string {
	return prefix + "." + op
}

// Responder turns request payloads into reply payloads.
type Responder struct {
	logger  *zap.Logger
	service Service
	prefix  string
}

// NewResponder builds a responder for subjects under prefix.
func NewResponder(logger *zap.Logger, service Service, prefix string) (*Responder, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if prefix == "" {
		return nil, fmt.Errorf("subject prefix cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{logger: logger, service: service, prefix: prefix}, nil
}

// Respond handles one request and always returns a reply payload.
func (r *Responder) Respond(ctx context.Context, subject string, data []byte) []byte {
	op := strings.TrimPrefix(subject, r.prefix+".")
	if op == subject {
		return r.fail(subject, CodeBadRequest, fmt.Errorf("subject %s is outside prefix %s", subject, r.prefix))
	}

	var (
		result interface{}
		err    error
	)
	switch op {
	case OpSize:
		var facility sizing.FacilityInput
		if err := decode(data, &facility); err != nil {
			return r.fail(subject, CodeBadRequest, err)
		}
		result, err = r.service.SizeFacility(ctx, facility)
	case OpPrice:
		var req PriceRequest
		if err := decode(data, &req); err != nil {
			return r.fail(subject, CodeBadRequest, err)
		}
		result, err = r.service.PriceEquipment(ctx, req.Sizing, req.Equipment)
	case OpFinancials:
		var req FinancialsRequest
		if err := decode(data, &req); err != nil {
			return r.fail(subject, CodeBadRequest, err)
		}
		result, err = r.service.ComputeFinancials(ctx, req.Costs, req.Rates, req.Financial)
	case OpQuote:
		var req engine.QuoteRequest
		if err := decode(data, &req); err != nil {
			return r.fail(subject, CodeBadRequest, err)
		}
		result, err = r.service.Quote(ctx, req)
	default:
		return r.fail(subject, CodeBadRequest, fmt.Errorf("unknown operation %q", op))
	}
	if err != nil {
		return r.fail(subject, codeFor(err), err)
	}

	reply, err := json.Marshal(result)
	if err != nil {
		return r.fail(subject, CodeInternal, fmt.Errorf("encode reply: %w", err))
	}
	r.logger.Debug("request served",
		zap.String("op", "natsrpc.Respond"),
		zap.String("subject", subject),
	)
	return reply
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	return nil
}

func codeFor(err error) string {
	switch {
	case engine.IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, sizing.ErrUnknownUseCase):
		return CodeNotFound
	}
	return CodeInternal
}

func (r *Responder) fail(subject, code string, err error) []byte {
	log := r.logger.Warn
	if code == CodeInternal {
		log = r.logger.Error
	}
	log("request failed",
		zap.String("op", "natsrpc.Respond"),
		zap.String("subject", subject),
		zap.String("code", code),
		zap.Error(err),
	)
	reply, _ := json.Marshal(ErrorReply{Error: err.Error(), Code: code})
	return reply
}

// Listener subscribes a Responder to a NATS connection.
type Listener struct {
	responder *Responder
	conn      *nats.Conn
	mu        sync.Mutex
	sub       *nats.Subscription
}

// NewListener binds responder to conn. Nothing is subscribed until Start.
func NewListener(responder *Responder, conn *nats.Conn) *Listener {
	return &Listener{responder: responder, conn: conn}
}

// Start subscribes to every operation subject. A non-empty queue group
// spreads requests across listeners.
func (l *Listener) Start(ctx context.Context, queue string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return fmt.Errorf("listener already started")
	}

	subject := Subject(l.responder.prefix, "*")
	handler := func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(l.responder.Respond(ctx, msg.Subject, msg.Data)); err != nil {
			l.responder.logger.Warn("failed to send reply",
				zap.String("op", "natsrpc.Listener"),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
	}

	var err error
	if queue != "" {
		l.sub, err = l.conn.QueueSubscribe(subject, queue, handler)
	} else {
		l.sub, err = l.conn.Subscribe(subject, handler)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	l.responder.logger.Info("listening for requests",
		zap.String("op", "natsrpc.Listener"),
		zap.String("subject", subject),
		zap.String("queue", queue),
	)
	return nil
}

// Stop drains the subscription.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return nil
	}
	err := l.sub.Drain()
	l.sub = nil
	if err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

// Requester is the subset of *nats.Conn used by Client.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// Client calls a remote responder.
type Client struct {
	conn   Requester
	prefix string
}

// NewClient builds a client for subjects under prefix.
func NewClient(conn Requester, prefix string) *Client {
	return &Client{conn: conn, prefix: prefix}
}

// Quote requests a quote from the remote engine.
func (c *Client) Quote(ctx context.Context, req engine.QuoteRequest) (engine.Quote, error) {
	var quote engine.Quote
	err := c.call(ctx, OpQuote, req, &quote)
	return quote, err
}

// SizeFacility requests a sizing from the remote engine.
func (c *Client) SizeFacility(ctx context.Context, facility sizing.FacilityInput) (sizing.Result, error) {
	var result sizing.Result
	err := c.call(ctx, OpSize, facility, &result)
	return result, err
}

func (c *Client) call(ctx context.Context, op string, req, resp interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, Subject(c.prefix, op), payload)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	return decodeReply(msg.Data, resp)
}

func decodeReply(data []byte, resp interface{}) error {
	var failure ErrorReply
	if err := json.Unmarshal(data, &failure); err == nil && failure.Error != "" {
		return &RemoteError{Code: failure.Code, Message: failure.Error}
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}

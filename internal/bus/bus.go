package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/AGENTHIVE/internal/registry"
)

// defaultRequestTTL bounds how long an outstanding request is remembered
// when the request carries no timeout
const defaultRequestTTL = 5 * time.Minute

// Bus is the typed envelope layer over the NATS transport. Delivery is
// in-process, at-most-once, ordered per (from, to) pair. Requests are
// correlated with responses through a TTL-expiring outstanding table;
// responses without a matching outstanding request are dropped with a
// debug-severity alert.
type Bus struct {
	client      *Client
	registry    *registry.Registry
	outstanding *gocache.Cache // request id -> *Request
	systemID    registry.AgentID
}

// New creates a bus over an established client connection
func New(client *Client, reg *registry.Registry) *Bus {
	return &Bus{
		client:      client,
		registry:    reg,
		outstanding: gocache.New(defaultRequestTTL, time.Minute),
		systemID:    registry.DeriveAgentID("agenthive-system"),
	}
}

// SystemID is the sender id used for envelopes originated by the core
func (b *Bus) SystemID() registry.AgentID {
	return b.systemID
}

// SendRequest delivers a task request to its target agent and records it
// as outstanding until a response arrives or the timeout elapses.
func (b *Bus) SendRequest(req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.SentAt = time.Now()

	ttl := req.Timeout
	if ttl <= 0 {
		ttl = defaultRequestTTL
	}
	b.outstanding.Set(req.ID.String(), req, ttl)

	if err := b.client.PublishJSON(RequestSubject(req.To), req); err != nil {
		b.outstanding.Delete(req.ID.String())
		return fmt.Errorf("failed to send request %s: %w", req.ID, err)
	}
	return nil
}

// OutstandingRequest returns the still-outstanding request for id, if any
func (b *Bus) OutstandingRequest(id uuid.UUID) (*Request, bool) {
	v, ok := b.outstanding.Get(id.String())
	if !ok {
		return nil, false
	}
	return v.(*Request), true
}

// SendResponse publishes a task response to the shared response subject
func (b *Bus) SendResponse(resp *Response) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	resp.SentAt = time.Now()
	return b.client.PublishJSON(SubjectResponse, resp)
}

// SubscribeResponses delivers correlated responses to handler. Responses
// whose request id is not outstanding are dropped.
func (b *Bus) SubscribeResponses(handler func(*Request, *Response)) error {
	_, err := b.client.Subscribe(SubjectResponse, func(msg *Message) {
		var resp Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			log.Printf("[BUS] Dropping malformed response: %v", err)
			return
		}

		v, ok := b.outstanding.Get(resp.RequestID.String())
		if !ok {
			// Late or unsolicited response
			b.publishAlertQuiet(SeverityDebug,
				fmt.Sprintf("dropped response %s: no outstanding request %s", resp.ID, resp.RequestID), nil)
			return
		}
		b.outstanding.Delete(resp.RequestID.String())
		handler(v.(*Request), &resp)
	})
	return err
}

// OnRequest subscribes an agent to its request subject
func (b *Bus) OnRequest(id registry.AgentID, handler func(*Request)) error {
	_, err := b.client.Subscribe(RequestSubject(id), func(msg *Message) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("[BUS] Dropping malformed request for %s: %v", id, err)
			return
		}
		handler(&req)
	})
	return err
}

// Broadcast fans the envelope out to every agent in scope. The scope is
// resolved against a registry snapshot at enqueue time.
func (b *Bus) Broadcast(bc *Broadcast) error {
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	bc.SentAt = time.Now()

	var targets []*registry.AgentMetadata
	switch {
	case bc.Scope.All:
		targets = b.registry.All()
	case bc.Scope.Layer != "":
		targets = b.registry.FindByLayer(bc.Scope.Layer)
	case bc.Scope.Role != "":
		targets = b.registry.FindByRole(bc.Scope.Role)
	}

	for _, meta := range targets {
		if err := b.client.PublishJSON(BroadcastSubject(meta.ID), bc); err != nil {
			log.Printf("[BUS] Broadcast %s to %s failed: %v", bc.Topic, meta.Name, err)
		}
	}
	return nil
}

// OnBroadcast subscribes an agent to its broadcast subject
func (b *Bus) OnBroadcast(id registry.AgentID, handler func(*Broadcast)) error {
	_, err := b.client.Subscribe(BroadcastSubject(id), func(msg *Message) {
		var bc Broadcast
		if err := json.Unmarshal(msg.Data, &bc); err != nil {
			return
		}
		handler(&bc)
	})
	return err
}

// PublishAlert emits an alert envelope from the core
func (b *Bus) PublishAlert(severity Severity, message string, context map[string]interface{}) error {
	alert := &Alert{
		ID:        uuid.New(),
		From:      b.systemID,
		Severity:  severity,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
	}
	return b.client.PublishJSON(SubjectAlert, alert)
}

func (b *Bus) publishAlertQuiet(severity Severity, message string, context map[string]interface{}) {
	if err := b.PublishAlert(severity, message, context); err != nil {
		log.Printf("[BUS] Failed to publish %s alert: %v", severity, err)
	}
}

// SubscribeAlerts delivers every alert envelope to handler
func (b *Bus) SubscribeAlerts(handler func(*Alert)) error {
	_, err := b.client.Subscribe(SubjectAlert, func(msg *Message) {
		var alert Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			return
		}
		handler(&alert)
	})
	return err
}

// PublishHeartbeat publishes an agent heartbeat
func (b *Bus) PublishHeartbeat(from registry.AgentID, health AgentHealth) error {
	hb := &Heartbeat{
		ID:        uuid.New(),
		From:      from,
		Health:    health,
		Timestamp: time.Now(),
	}
	return b.client.PublishJSON(HeartbeatSubject(from), hb)
}

// SubscribeHeartbeats delivers every agent heartbeat to handler
func (b *Bus) SubscribeHeartbeats(handler func(*Heartbeat)) error {
	_, err := b.client.Subscribe(SubjectAllHeartbeats, func(msg *Message) {
		var hb Heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err != nil {
			return
		}
		handler(&hb)
	})
	return err
}

// PublishRegistration announces a registry change
func (b *Bus) PublishRegistration(action RegistrationAction, meta *registry.AgentMetadata) error {
	reg := &Registration{
		ID:       uuid.New(),
		From:     b.systemID,
		Action:   action,
		Metadata: meta,
		SentAt:   time.Now(),
	}
	return b.client.PublishJSON(SubjectRegistration, reg)
}

// SubscribeRegistrations delivers registration envelopes to handler
func (b *Bus) SubscribeRegistrations(handler func(*Registration)) error {
	_, err := b.client.Subscribe(SubjectRegistration, func(msg *Message) {
		var reg Registration
		if err := json.Unmarshal(msg.Data, &reg); err != nil {
			return
		}
		handler(&reg)
	})
	return err
}

// Escalate sends an escalation envelope toward the hierarchy
func (b *Bus) Escalate(esc *Escalation) error {
	if esc.ID == uuid.Nil {
		esc.ID = uuid.New()
	}
	esc.Timestamp = time.Now()
	return b.client.PublishJSON(SubjectEscalation, esc)
}

// SubscribeEscalations delivers escalation envelopes to handler
func (b *Bus) SubscribeEscalations(handler func(*Escalation)) error {
	_, err := b.client.Subscribe(SubjectEscalation, func(msg *Message) {
		var esc Escalation
		if err := json.Unmarshal(msg.Data, &esc); err != nil {
			return
		}
		handler(&esc)
	})
	return err
}

// Flush flushes the underlying connection
func (b *Bus) Flush() error {
	return b.client.Flush()
}

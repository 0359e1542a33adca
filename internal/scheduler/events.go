package scheduler

import "quantopia/internal/domain"

// EventType tags a scheduler event.
type EventType string

// Event types.
const (
	EventStatus      EventType = "status"
	EventPriceSample EventType = "price_sample"
	EventTrade       EventType = "trade"
)

// Event is a state-change notification pushed to the optional sink.
type Event struct {
	TaskID  string          `json:"task_id"`
	Kind    domain.TaskKind `json:"kind"`
	Type    EventType       `json:"type"`
	Payload map[string]any  `json:"payload,omitempty"`
}

// SetEventSink installs the event sink. The sink must not block; call this
// before any task is created.
func (s *Scheduler) SetEventSink(sink func(Event)) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Scheduler) publish(t *task, eventType EventType, payload map[string]any) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	sink(Event{
		TaskID:  t.cfg.TaskID,
		Kind:    t.cfg.Kind,
		Type:    eventType,
		Payload: payload,
	})
}

package realtime

import "go.uber.org/zap"

// Relay forwards point-to-point events to whoever the registry says is online.
// Absent targets are dropped silently; there is no queue and no retry.
type Relay struct {
	registry *Registry
	logger   *zap.Logger
}

func NewRelay(registry *Registry, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{registry: registry, logger: logger}
}

// Forward delivers one event to targetUserID and reports whether it was handed to a connection.
func (r *Relay) Forward(targetUserID, event string, payload any) bool {
	if targetUserID == "" {
		r.logger.Debug("signal dropped", zap.String("event", event), zap.String("reason", "missing_target"))
		return false
	}
	conn, ok := r.registry.Lookup(targetUserID)
	if !ok {
		r.logger.Debug("signal dropped",
			zap.String("event", event),
			zap.String("target", targetUserID),
			zap.String("reason", "target_offline"))
		return false
	}
	if !conn.Send(Message{Event: event, Data: payload}) {
		r.logger.Debug("signal dropped",
			zap.String("event", event),
			zap.String("target", targetUserID),
			zap.String("reason", "send_buffer_full"))
		return false
	}
	return true
}

// Package notify implements the best-effort admin notification channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.Notifier = (*Notifier)(nil)

const header = "⚠ Admin Notification ⚠"

// sendTimeout bounds each admin delivery so one stuck transport cannot
// stall the remaining fan-out.
const sendTimeout = 10 * time.Second

// Notifier fans diagnostic payloads out to the admin ids configured in
// the global scope. Fire and forget: it is a diagnostic path, not a
// delivery-guaranteed channel.
type Notifier struct {
	global    plugin.Config
	messenger plugin.Messenger
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates a Notifier sourced from the global configuration. The
// messenger may be nil at construction time and attached later with
// SetMessenger, since the transport is built after the collaborators
// that need a Notifier.
func New(global plugin.Config, messenger plugin.Messenger, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{
		global:    global,
		messenger: messenger,
		metrics:   m,
		logger:    logger,
	}
}

// SetMessenger attaches the outbound transport. Not safe to call once
// notifications may be in flight.
func (n *Notifier) SetMessenger(m plugin.Messenger) { n.messenger = m }

// Notify sends the stringified payload to every configured admin when the
// admin.notify_on_error flag is set. A failed delivery to one admin is
// logged and does not abort delivery to the rest. The payload is returned
// unchanged so Notify can be used inline at a call site.
func (n *Notifier) Notify(v any) any {
	if !n.global.GetBool("admin", "notify_on_error") {
		return v
	}
	if n.messenger == nil {
		n.logger.Warn("notification dropped, no transport attached")
		return v
	}

	text := fmt.Sprintf("%s\n%v", header, v)

	for _, admin := range n.global.GetInt64s("admin", "ids") {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		_, err := n.messenger.SendMessage(ctx, admin, text)
		cancel()
		if err != nil {
			n.metrics.NotifyFailed.Inc()
			n.logger.Error("not possible to notify admin",
				zap.Int64("admin_id", admin),
				zap.Error(err),
			)
			continue
		}
		n.metrics.NotifySent.Inc()
	}
	return v
}

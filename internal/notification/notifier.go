// Package notification delivers setup alerts to external channels.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Setup   *model.TradeSetup `json:"setup,omitempty"`
}

// Notifier delivers alerts to one backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// SetupAlert builds the alert for a trade setup. STRONG setups are raised
// as warnings so they stand out in chat.
func SetupAlert(s model.TradeSetup) Alert {
	level := AlertInfo
	if s.SignalStrength == model.SignalStrong {
		level = AlertWarning
	}
	msg := fmt.Sprintf("%s %s setup (score %.1f)\nentry %.4f  stop %.4f  target %.4f  R %.2f",
		s.SignalStrength, s.SetupType, s.Score, s.EntryPrice, s.StopLoss, s.TargetPrice, s.RMultiple)
	if s.Notes != "" {
		msg += "\n" + s.Notes
	}
	return Alert{
		Level:   level,
		Title:   s.Symbol + " " + string(s.SetupType),
		Message: msg,
		Setup:   &s,
	}
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	log.Info().Str("component", "notify").Str("level", string(alert.Level)).
		Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// Dispatcher queues alerts and delivers them to every notifier from one
// goroutine, so a slow backend never stalls the caller. When the queue is
// full new alerts are dropped.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan Alert
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(buffer int, m *metrics.Metrics, notifiers ...Notifier) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan Alert, buffer),
		timeout:   15 * time.Second,
		metrics:   m,
	}
}

// Notify enqueues alert without blocking. It reports whether the alert was
// accepted.
func (d *Dispatcher) Notify(alert Alert) bool {
	select {
	case d.queue <- alert:
		return true
	default:
		d.count("dropped")
		log.Warn().Str("component", "notify").Str("title", alert.Title).Msg("queue full, dropping alert")
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) {
	for _, n := range d.notifiers {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Send(sctx, alert)
		cancel()
		if err != nil {
			d.count("error")
			log.Error().Err(err).Str("component", "notify").Str("title", alert.Title).
				Str("notifier", fmt.Sprintf("%T", n)).Msg("delivery failed")
			continue
		}
		d.count("sent")
	}
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.NotificationsTotal.WithLabelValues(result).Inc()
	}
}

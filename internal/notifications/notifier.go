// Package notifications routes alert envelopes to operators: the log,
// the desktop, and any registered sinks.
package notifications

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/AGENTHIVE/internal/bus"
)

// dedupWindow suppresses repeats of the same alert key
const dedupWindow = 5 * time.Minute

// Sink receives alerts that pass severity and dedup filtering
type Sink interface {
	Notify(alert *bus.Alert) error
}

// Notifier subscribes to the bus alert stream and fans qualifying
// alerts out to operator sinks. Duplicate messages within the window
// are suppressed.
type Notifier struct {
	mu           sync.Mutex
	recentAlerts map[string]time.Time
	sinks        []Sink
	toast        *ToastNotifier
}

// New creates a notifier with the desktop toast sink wired on platforms
// that support it
func New(dashboardURL string) *Notifier {
	return &Notifier{
		recentAlerts: make(map[string]time.Time),
		toast:        NewToastNotifier("", dashboardURL),
	}
}

// AddSink registers an additional alert sink
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Attach subscribes the notifier to the bus alert stream
func (n *Notifier) Attach(b *bus.Bus) error {
	return b.SubscribeAlerts(n.Handle)
}

// Handle processes one alert envelope
func (n *Notifier) Handle(alert *bus.Alert) {
	switch alert.Severity {
	case bus.SeverityDebug:
		return
	case bus.SeverityInfo:
		log.Printf("[NOTIFY] %s", alert.Message)
		return
	}

	key := fmt.Sprintf("%s:%s", alert.Severity, alert.Message)
	if !n.shouldNotify(key) {
		return
	}

	log.Printf("[NOTIFY] %s alert: %s", alert.Severity, alert.Message)

	if alert.Severity == bus.SeverityCritical || alert.Severity == bus.SeverityEmergency {
		if runtime.GOOS == "windows" {
			if err := n.toast.Show("AGENTHIVE "+string(alert.Severity), alert.Message); err != nil {
				log.Printf("[NOTIFY] Toast failed: %v", err)
			}
		}
	}

	n.mu.Lock()
	sinks := append([]Sink(nil), n.sinks...)
	n.mu.Unlock()
	for _, s := range sinks {
		if err := s.Notify(alert); err != nil {
			log.Printf("[NOTIFY] Sink failed: %v", err)
		}
	}
}

// shouldNotify suppresses duplicate alerts inside the dedup window
func (n *Notifier) shouldNotify(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for k, ts := range n.recentAlerts {
		if now.Sub(ts) > dedupWindow {
			delete(n.recentAlerts, k)
		}
	}
	if _, exists := n.recentAlerts[key]; exists {
		return false
	}
	n.recentAlerts[key] = now
	return true
}

package hub

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/frame"
)

// Notifier pushes externally persisted notification records to the recipient's
// live connections. Offline recipients are simply skipped; the persisted copy
// remains fetchable over the notification REST contract.
type Notifier struct {
	Registry *Registry
}

func NewNotifier(reg *Registry) *Notifier {
	return &Notifier{Registry: reg}
}

// Push delivers one record and reports how many connections received it.
func (n *Notifier) Push(rec domain.Notification) (int, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("notifier: marshal record: %w", err)
	}
	conns := n.Registry.ConnsOf(rec.RecipientID)
	if len(conns) == 0 {
		log.Info().Str("module", "hub.notifier").Int64("recipient", int64(rec.RecipientID)).Msg("recipient offline, push skipped")
		return 0, nil
	}
	data := frame.Notification{JSON: string(body)}.Encode()
	delivered := 0
	for _, c := range conns {
		if err := c.Conn.TrySend(data); err != nil {
			framesDropped.WithLabelValues("backpressure").Inc()
			continue
		}
		delivered++
	}
	notificationsPushed.Add(float64(delivered))
	return delivered, nil
}

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

// handleOrderStream pushes new storefront orders as server-sent events. The
// first event carries the pending count so a reconnecting client can resync.
// Only orders for the requested store type are forwarded.
func (a *API) handleOrderStream(w http.ResponseWriter, r *http.Request) {
	storeType, err := a.service.StoreTypeFor(storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	count, err := a.service.PendingOrderCount(r.Context(), storeType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	updates, cancel, err := a.service.SubscribeOrders(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "pending", map[string]int{"count": count}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		a.logger.Warn("order stream does not support flushing", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case n, ok := <-updates:
			if !ok {
				return
			}
			if n.StoreType != storeType {
				continue
			}
			if err := writeEvent(w, "order", n); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// Package distributor implements the event distributor (component H): a
// single process-wide listener on Postgres's `new_event` notification
// channel fans append-in-transaction events out to per-table (or admin,
// all-events) subscribers with resume-from-id SSE semantics.
package distributor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/cloutcards/pokerhouse/internal/apperr"
	"github.com/cloutcards/pokerhouse/internal/domain"
	"github.com/cloutcards/pokerhouse/internal/eventlog"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
	heartbeatInterval    = 30 * time.Second
	backlogLimit         = 100
)

// notification is the trigger's payload shape (schema.sql's
// notify_new_event): {eventId, tableId, kind}.
type notification struct {
	EventID int64  `json:"eventId"`
	TableID *int64 `json:"tableId"`
	Kind    string `json:"kind"`
}

type subscriber struct {
	tableID *int64 // nil subscribes to every table (admin stream)
	lastID  int64
	ch      chan *domain.Event
}

// Distributor is the one legitimate process-global notification-listener
// singleton named in §9.
type Distributor struct {
	log      *eventlog.Log
	listener *pq.Listener
	logger   zerolog.Logger

	mu     sync.Mutex
	subs   map[int64]*subscriber
	nextID int64
}

func New(dsn string, log *eventlog.Log, logger zerolog.Logger) *Distributor {
	lg := logger.With().Str("component", "distributor").Logger()
	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			lg.Warn().Err(err).Int("listenerEvent", int(ev)).Msg("pq listener event")
		}
	})
	return &Distributor{log: log, listener: listener, logger: lg, subs: map[int64]*subscriber{}}
}

// Run blocks, delivering notifications to subscribers until ctx is
// cancelled.
func (d *Distributor) Run(ctx context.Context) error {
	if err := d.listener.Listen("new_event"); err != nil {
		return apperr.Wrap(apperr.InternalFatal, "listen new_event channel", err)
	}
	defer d.listener.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-d.listener.Notify:
			if n == nil {
				continue
			}
			d.handleNotification(ctx, n.Extra)
		case <-time.After(pingInterval):
			go d.listener.Ping()
		}
	}
}

func (d *Distributor) handleNotification(ctx context.Context, payload string) {
	var note notification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		d.logger.Warn().Err(err).Str("payload", payload).Msg("decode new_event notification")
		return
	}

	d.mu.Lock()
	var targets []*subscriber
	for _, sub := range d.subs {
		if sub.tableID != nil && (note.TableID == nil || *sub.tableID != *note.TableID) {
			continue
		}
		if note.EventID <= sub.lastID {
			continue
		}
		targets = append(targets, sub)
	}
	d.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	ev, err := d.log.ByID(ctx, note.EventID)
	if err != nil {
		d.logger.Warn().Err(err).Int64("eventId", note.EventID).Msg("hydrate notified event")
		return
	}
	for _, sub := range targets {
		select {
		case sub.ch <- ev:
			sub.lastID = ev.EventID
		default:
			// Non-blocking, best-effort per §4.8; a slow subscriber misses a
			// live update but can still resume from lastEventId.
		}
	}
}

func (d *Distributor) subscribe(tableID *int64, lastEventID int64) (int64, *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &subscriber{tableID: tableID, lastID: lastEventID, ch: make(chan *domain.Event, 64)}
	d.subs[id] = sub
	return id, sub
}

func (d *Distributor) unsubscribe(id int64) {
	d.mu.Lock()
	delete(d.subs, id)
	d.mu.Unlock()
}

// StreamTable implements the table SSE subscription operation of §4.8. It
// blocks until the request context is cancelled (client disconnect).
func (d *Distributor) StreamTable(ctx context.Context, w http.ResponseWriter, tableID int64, lastEventID int64) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return apperr.New(apperr.InternalFatal, "response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	cursor := lastEventID
	if lastEventID > 0 {
		backlog, err := d.log.ByTableSince(ctx, tableID, lastEventID, backlogLimit)
		if err != nil {
			return err
		}
		for _, ev := range backlog {
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			cursor = ev.EventID
		}
		flusher.Flush()
	}

	id, sub := d.subscribe(&tableID, cursor)
	defer d.unsubscribe(id)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.ch:
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev *domain.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.EventID, ev.PayloadJSON)
	return err
}

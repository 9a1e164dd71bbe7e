// Package realtime turns the raw change feed into debounced refetch notices for admin screens.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultWindow is the quiet period that closes a burst of changes
const DefaultWindow = 300 * time.Millisecond

var watchable = map[string]bool{
	domain.TablePackages:        true,
	domain.TableDurations:       true,
	domain.TableAddOns:          true,
	domain.TablePromoCodes:      true,
	domain.TableTemplates:       true,
	domain.TableOrderDrafts:     true,
	domain.TableGatewaySettings: true,
}

// Watchable reports whether table publishes change events
func Watchable(table string) bool { return watchable[table] }

// Refetch tells a subscriber that rows changed and its view should be reloaded
type Refetch struct {
	Table  string   `json:"table"`
	RowIDs []string `json:"row_ids,omitempty"`
	Events int      `json:"events"`
}

// Debounce coalesces events into one Refetch emitted once window has passed without a new
// event. When rowID is set, events for other rows are ignored; table-wide events still count.
// The returned channel closes after in closes (flushing any pending burst) or ctx ends.
func Debounce(ctx context.Context, in <-chan domain.ChangeEvent, window time.Duration, rowID string) <-chan Refetch {
	if window <= 0 {
		window = DefaultWindow
	}
	out := make(chan Refetch)

	go func() {
		defer close(out)

		timer := time.NewTimer(window)
		if !timer.Stop() {
			<-timer.C
		}
		var (
			pending *Refetch
			seen    map[string]bool
		)

		emit := func() bool {
			if pending == nil {
				return true
			}
			select {
			case out <- *pending:
				pending = nil
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-in:
				if !ok {
					timer.Stop()
					emit()
					return
				}
				if rowID != "" && ev.RowID != "" && ev.RowID != rowID {
					continue
				}
				if pending == nil {
					pending = &Refetch{Table: ev.Table}
					seen = map[string]bool{}
				}
				pending.Events++
				if ev.RowID != "" && !seen[ev.RowID] {
					seen[ev.RowID] = true
					pending.RowIDs = append(pending.RowIDs, ev.RowID)
				}
				// restart the quiet period
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(window)
			case <-timer.C:
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}

// Watcher opens debounced subscriptions on a change feed
type Watcher struct {
	feed   domain.ChangeFeed
	window time.Duration
	logger zerolog.Logger
}

// NewWatcher creates a watcher. A zero window uses DefaultWindow.
func NewWatcher(feed domain.ChangeFeed, window time.Duration) *Watcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Watcher{
		feed:   feed,
		window: window,
		logger: log.With().Str("component", "realtime").Logger(),
	}
}

// Watch streams refetch notices for table (optionally one row) until ctx ends
func (w *Watcher) Watch(ctx context.Context, table, rowID string) (<-chan Refetch, error) {
	if !Watchable(table) {
		return nil, domain.NewValidationError("table", "unknown table")
	}
	sub, err := w.feed.Subscribe(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", table, err)
	}
	go func() {
		<-ctx.Done()
		if err := sub.Close(); err != nil {
			w.logger.Debug().Err(err).Str("table", table).Msg("subscription close failed")
		}
	}()
	w.logger.Debug().Str("table", table).Str("row_id", rowID).Msg("watch opened")
	return Debounce(ctx, sub.Events(), w.window, rowID), nil
}

package domain

import "context"

// Tables that publish change events
const (
	TablePackages        = "packages"
	TableDurations       = "package_durations"
	TableAddOns          = "add_ons"
	TablePromoCodes      = "promo_codes"
	TableTemplates       = "templates"
	TableOrderDrafts     = "order_drafts"
	TableGatewaySettings = "gateway_settings"
)

// ChangeEvent notifies subscribers that a row changed. Delivery is best effort.
type ChangeEvent struct {
	Table string `json:"table"`
	RowID string `json:"row_id,omitempty"`
	Op    string `json:"op"` // insert, update, delete
}

// ChangePublisher broadcasts row changes
type ChangePublisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// ChangeSubscription is a live feed of events for one table
type ChangeSubscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// ChangeFeed opens subscriptions
type ChangeFeed interface {
	ChangePublisher
	Subscribe(ctx context.Context, table string) (ChangeSubscription, error)
}

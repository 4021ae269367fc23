// Package events defines the integration-event shape carried by the outbox.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent is the opaque payload stored in the outbox's event column.
// The dispatcher never interprets EventName or Payload; it only decodes enough
// to hand the value to the two handler capabilities.
type IntegrationEvent struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventName     string          `json:"eventName"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CorrelationID uuid.UUID       `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// Decode parses a raw outbox row payload into an IntegrationEvent.
func Decode(raw []byte) (IntegrationEvent, error) {
	var evt IntegrationEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return IntegrationEvent{}, fmt.Errorf("decode integration event: %w", err)
	}
	return evt, nil
}

// Encode serializes an IntegrationEvent back to its JSONB representation.
func Encode(evt IntegrationEvent) ([]byte, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode integration event: %w", err)
	}
	return raw, nil
}

// Known event names for the commerce domain this dispatcher serves. New
// event names do not require code changes here: handlers discriminate on
// EventName themselves (tagged-union dispatch), not through this list.
const (
	EventProductCreated        = "ProductCreated"
	EventProductVariantCreated = "ProductVariantCreated"
	EventProductPriceChanged   = "ProductPriceChanged"
	EventOrderPlaced           = "OrderPlaced"
	EventOrderCanceled         = "OrderCanceled"
	EventInventoryAdjusted     = "InventoryAdjusted"
)

package store

// WebhookDelivery is one queued outbound event delivery.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string // pending, delivered, failed
	Attempts       int
}

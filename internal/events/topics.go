package events

// Topics emitted by the order-edit workflow.
const (
	// TopicOrderCreated fires after a create-mode submit persists a new order.
	TopicOrderCreated = "order.created"
	// TopicOrderUpdated fires after an edit-mode submit completes.
	TopicOrderUpdated = "order.updated"
	// TopicOrderLineRemoved fires after an eager existing-line deletion.
	TopicOrderLineRemoved = "order.line.removed"
)

package models

// All lists every persisted model in dependency order, for sqlite AutoMigrate.
func All() []any {
	return []any{
		&Session{},
		&TicketType{},
		&Order{},
		&OrderLineItem{},
		&Participant{},
		&Payment{},
		&WebhookEvent{},
		&OrderReminder{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

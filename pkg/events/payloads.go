package events

// Typed payloads, one per topic. Amounts are in the smallest currency unit.

// ReservationCreated is published when a guardian books a caregiver.
type ReservationCreated struct {
	ReservationID string `json:"reservation_id"`
	GuardianID    string `json:"guardian_id"`
	CaregiverID   string `json:"caregiver_id"`
	Amount        int64  `json:"amount"`
}

// ReservationStatusChanged records a single reservation state transition.
// Caregiver and amount ride along so downstream consumers (settlement) need
// no lookup into the reservation store.
type ReservationStatusChanged struct {
	ReservationID  string `json:"reservation_id"`
	CaregiverID    string `json:"caregiver_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Reason         string `json:"reason,omitempty"`
}

// ReservationCancelled asks the payment service to compensate the linked
// payment after a guardian-side cancellation.
type ReservationCancelled struct {
	ReservationID string `json:"reservation_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

// PaymentCompleted is published once a payment reaches COMPLETED.
type PaymentCompleted struct {
	PaymentID     string `json:"payment_id"`
	ReservationID string `json:"reservation_id"`
	GuardianID    string `json:"guardian_id,omitempty"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method,omitempty"`
}

// PaymentCancelled covers both cancellation and refund of a payment.
type PaymentCancelled struct {
	PaymentID     string `json:"payment_id"`
	ReservationID string `json:"reservation_id"`
	GuardianID    string `json:"guardian_id,omitempty"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
	Refunded      bool   `json:"refunded,omitempty"`
}

// CaregiverAcceptRequested asks the caregiver side to queue an approval.
type CaregiverAcceptRequested struct {
	ReservationID string `json:"reservation_id"`
	CaregiverID   string `json:"caregiver_id"`
	GuardianID    string `json:"guardian_id,omitempty"`
}

// NotificationRequested is an ad hoc direct notification.
type NotificationRequested struct {
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// SettlementCreated is published for downstream notification consumption.
type SettlementCreated struct {
	SettlementID  string `json:"settlement_id"`
	CaregiverID   string `json:"caregiver_id"`
	ReservationID string `json:"reservation_id,omitempty"`
	Amount        int64  `json:"amount"`
	Period        string `json:"period,omitempty"`
}

package enrollment

// Kind is the product type purchased by an enrollment.
type Kind string

const (
	// KindColonia is course based: one or two courses per student, no world.
	KindColonia Kind = "colonia"
	// KindEscuela is track based: exactly one world per student, no courses.
	KindEscuela Kind = "escuela"
	// KindCicloCompleto combines both: one or two courses plus one world.
	KindCicloCompleto Kind = "ciclo_completo"
)

func (k Kind) Valid() bool {
	switch k {
	case KindColonia, KindEscuela, KindCicloCompleto:
		return true
	default:
		return false
	}
}

func (k Kind) AllowsCourses() bool { return k == KindColonia || k == KindCicloCompleto }
func (k Kind) RequiresWorld() bool { return k == KindEscuela || k == KindCicloCompleto }

// State is the enrollment lifecycle state.
type State string

const (
	StateNone          State = "none"
	StatePending       State = "pending"
	StateActive        State = "active"
	StatePaymentFailed State = "payment_failed"
)

// PaymentStatus is the internal payment status derived from provider statuses.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// StateForPayment maps a payment status to the enrollment state it implies.
func StateForPayment(s PaymentStatus) State {
	switch s {
	case PaymentPaid:
		return StateActive
	case PaymentFailed:
		return StatePaymentFailed
	default:
		return StatePending
	}
}

const (
	ActorSystem         = "system"
	ActorPaymentWebhook = "payment_webhook"

	ReasonEnrollmentCreated = "enrollment_created"
)

var allowedTransitions = map[State][]State{
	StatePending:       {StateActive, StatePaymentFailed},
	StatePaymentFailed: {StateActive, StatePending},
}

// TransitionAllowed reports whether the payment pipeline may move an
// enrollment from one state to another. Active is terminal.
func TransitionAllowed(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

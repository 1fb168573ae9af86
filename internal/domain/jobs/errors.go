package jobs

import "errors"

const JobTypePaymentWebhook = "payment_webhook"

// PermanentError marks a job failure that retrying cannot fix; the queue
// dead-letters it without spending the remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

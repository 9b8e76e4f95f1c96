package engine

import "errors"

// Sentinel errors returned by pipeline operations. Callers branch on these
// with errors.Is; the HTTP layer maps each to a status code.
var (
	// ErrTaskNotAvailable is returned when a claim targets a task that is
	// locked, already claimed or past claiming, including the loser of a
	// simultaneous claim race.
	ErrTaskNotAvailable = errors.New("task is not available to claim")

	// ErrLevelTooLow is returned when the claimant's level is below the
	// task's minimum.
	ErrLevelTooLow = errors.New("contributor level below task minimum")

	// ErrNotClaimant is returned when someone other than the current
	// claimant tries to submit or abandon the task.
	ErrNotClaimant = errors.New("caller does not hold the claim on this task")

	// ErrTaskNotClaimed is returned when abandoning a task that is not in
	// the claimed state.
	ErrTaskNotClaimed = errors.New("task is not in a claimed state")

	// ErrEmptySubmission is returned when a submission carries neither
	// notes nor an attachment.
	ErrEmptySubmission = errors.New("submission requires notes or an attachment")

	// ErrSubmissionOpen is returned when the task already has a submission
	// awaiting a verdict or decision.
	ErrSubmissionOpen = errors.New("task already has an open submission")

	// ErrVerdictPending is returned when a human decision is attempted
	// before the AI stage has produced its verdict.
	ErrVerdictPending = errors.New("submission has no verdict yet")

	// ErrAlreadyReviewed is returned when a human decision is repeated on
	// a submission that already has one. Terminal decisions never change.
	ErrAlreadyReviewed = errors.New("submission already has a human decision")

	// ErrAlreadySettled is returned when settlement is attempted for a
	// task that has already been validated and paid.
	ErrAlreadySettled = errors.New("task already settled")

	// ErrPaymentFinalized is returned when a payout write-back targets a
	// payment that is no longer pending.
	ErrPaymentFinalized = errors.New("payment already finalized")
)

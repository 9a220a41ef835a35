// Package progress drives the four-step batch submission flow: validate,
// sign, broadcast, done. It owns the step states and the terminal outcome;
// the actual chain work is delegated to a Submitter.
package progress

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

// Step identifies one stage of the submission flow.
type Step string

const (
	StepValidate  Step = "validate"
	StepSign      Step = "sign"
	StepBroadcast Step = "broadcast"
	StepDone      Step = "done"
)

// Steps lists the stages in execution order.
var Steps = []Step{StepValidate, StepSign, StepBroadcast, StepDone}

// State is the status of a single step.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateSuccess State = "success"
	StateError   State = "error"
)

// FailureKind classifies a failed run so callers can present the right
// recovery path.
type FailureKind string

const (
	FailureGeneric      FailureKind = "generic"
	FailureCancelled    FailureKind = "cancelled"
	FailureWrongNetwork FailureKind = "wrong_network"
)

// ClassifyFailure buckets an error by its message: wallet cancellations and
// wrong-network rejections get their own kinds, everything else is generic.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureGeneric
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cancel"):
		return FailureCancelled
	case strings.Contains(msg, "testnet") || strings.Contains(msg, "switch"):
		return FailureWrongNetwork
	default:
		return FailureGeneric
	}
}

// ErrInFlight is returned by Run while a previous run is still executing.
var ErrInFlight = errors.New("batch submission already in progress")

// ErrNothingToSubmit is returned when the recipient set is empty.
var ErrNothingToSubmit = errors.New("no valid recipients to submit")

// Submitter performs the chain-facing half of a run. Validate is the
// pre-flight check; Submit suspends until the wallet signs and broadcasts,
// returning the transaction id.
type Submitter interface {
	Validate(ctx context.Context, recipients []batch.TxRecipient) error
	Submit(ctx context.Context, recipients []batch.TxRecipient) (string, error)
}

// StepInfo is the externally visible state of one step.
type StepInfo struct {
	Step  Step  `json:"step"`
	State State `json:"state"`
}

// Snapshot is a point-in-time view of the whole flow.
type Snapshot struct {
	Steps   []StepInfo  `json:"steps"`
	Running bool        `json:"running"`
	Done    bool        `json:"done"`
	TxID    string      `json:"txId,omitempty"`
	Error   string      `json:"error,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
}

// Controller runs submissions one at a time and tracks step state across
// the run. All methods are safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	states     map[Step]State
	running    bool
	done       bool
	txID       string
	err        error
	last       []batch.TxRecipient
	lastSub    Submitter
	onComplete func()
	notify     chan Snapshot
}

// NewController builds an idle controller. onComplete, if non-nil, fires
// once when a successful run is acknowledged via Finish.
func NewController(onComplete func()) *Controller {
	c := &Controller{
		onComplete: onComplete,
		notify:     make(chan Snapshot, 8),
	}
	c.resetLocked()
	return c
}

// Updates exposes the notification stream. Sends are best-effort; a slow
// reader misses intermediate snapshots, never the method results.
func (c *Controller) Updates() <-chan Snapshot {
	return c.notify
}

// Run executes the full flow for the given recipients. Only one run may be
// in flight; concurrent calls fail fast with ErrInFlight.
func (c *Controller) Run(ctx context.Context, submitter Submitter, recipients []batch.TxRecipient) (string, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return "", ErrInFlight
	}
	if len(recipients) == 0 {
		c.mu.Unlock()
		return "", ErrNothingToSubmit
	}
	c.resetLocked()
	c.running = true
	c.last = append([]batch.TxRecipient(nil), recipients...)
	c.lastSub = submitter
	c.mu.Unlock()

	txID, err := c.execute(ctx, submitter, recipients)

	c.mu.Lock()
	c.running = false
	if err != nil {
		c.err = err
	} else {
		c.done = true
		c.txID = txID
	}
	c.publishLocked()
	c.mu.Unlock()

	return txID, err
}

// Retry re-runs the flow with the recipients and submitter from the last
// attempt.
func (c *Controller) Retry(ctx context.Context) (string, error) {
	c.mu.Lock()
	recipients := append([]batch.TxRecipient(nil), c.last...)
	submitter := c.lastSub
	c.mu.Unlock()
	if submitter == nil {
		return "", ErrNothingToSubmit
	}
	return c.Run(ctx, submitter, recipients)
}

func (c *Controller) execute(ctx context.Context, submitter Submitter, recipients []batch.TxRecipient) (string, error) {
	c.setState(StepValidate, StateActive)
	if err := submitter.Validate(ctx, recipients); err != nil {
		c.setState(StepValidate, StateError)
		return "", err
	}
	c.setState(StepValidate, StateSuccess)

	// The wallet signs and broadcasts in one suspension; the sign step stays
	// active for its duration.
	c.setState(StepSign, StateActive)
	txID, err := submitter.Submit(ctx, recipients)
	if err != nil {
		c.setState(StepSign, StateError)
		return "", err
	}
	c.setState(StepSign, StateSuccess)

	c.setState(StepBroadcast, StateSuccess)
	c.setState(StepDone, StateSuccess)
	return txID, nil
}

// Finish acknowledges a completed run and resets the controller. When the
// run succeeded, the completion hook fires exactly once.
func (c *Controller) Finish() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	fireHook := c.done && c.onComplete != nil
	c.resetLocked()
	c.publishLocked()
	c.mu.Unlock()

	if fireHook {
		c.onComplete()
	}
}

// Snapshot returns the current flow state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) setState(step Step, state State) {
	c.mu.Lock()
	c.states[step] = state
	c.publishLocked()
	c.mu.Unlock()
}

func (c *Controller) resetLocked() {
	c.states = make(map[Step]State, len(Steps))
	for _, s := range Steps {
		c.states[s] = StatePending
	}
	c.done = false
	c.txID = ""
	c.err = nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Steps:   make([]StepInfo, 0, len(Steps)),
		Running: c.running,
		Done:    c.done,
		TxID:    c.txID,
	}
	for _, s := range Steps {
		snap.Steps = append(snap.Steps, StepInfo{Step: s, State: c.states[s]})
	}
	if c.err != nil {
		snap.Error = c.err.Error()
		snap.Failure = ClassifyFailure(c.err)
	}
	return snap
}

func (c *Controller) publishLocked() {
	select {
	case c.notify <- c.snapshotLocked():
	default:
	}
}

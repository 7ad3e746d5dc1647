package escrow

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Supported payment methods. Unknown methods are still processed, at the
// default success rate.
const (
	MethodCreditCard   = "credit_card"
	MethodDebitCard    = "debit_card"
	MethodBankTransfer = "bank_transfer"
	MethodPayPal       = "paypal"
	MethodApplePay     = "apple_pay"
	MethodGooglePay    = "google_pay"
	MethodStripe       = "stripe"
)

// successRates are the simulated per-method payment success probabilities.
var successRates = map[string]float64{
	MethodCreditCard:   0.95,
	MethodDebitCard:    0.92,
	MethodBankTransfer: 0.88,
	MethodPayPal:       0.94,
	MethodApplePay:     0.97,
	MethodGooglePay:    0.96,
	MethodStripe:       0.96,
}

// defaultSuccessRate applies to unrecognized payment methods.
const defaultSuccessRate = 0.90

// failureReasons are drawn uniformly when a simulated payment fails.
var failureReasons = []string{
	"Insufficient funds",
	"Payment method declined",
	"Card expired",
	"Invalid payment details",
	"Transaction limit exceeded",
}

// processorNames are the simulated processor labels per payment method.
var processorNames = map[string]string{
	MethodCreditCard:   "Stripe Payment Processing",
	MethodDebitCard:    "Stripe Payment Processing",
	MethodBankTransfer: "ACH Processing Network",
	MethodPayPal:       "PayPal Payment System",
	MethodApplePay:     "Apple Pay via Stripe",
	MethodGooglePay:    "Google Pay via Stripe",
	MethodStripe:       "Stripe Direct Processing",
}

// ProcessorName returns the display name of the simulated processor handling
// a payment method.
func ProcessorName(method string) string {
	if name, ok := processorNames[method]; ok {
		return name
	}
	return "Generic Payment Processor"
}

// SuccessRate returns the simulated success probability for a method.
func SuccessRate(method string) float64 {
	if rate, ok := successRates[method]; ok {
		return rate
	}
	return defaultSuccessRate
}

// Outcome is the result of one simulated payment attempt.
type Outcome struct {
	Success       bool          `json:"success"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Processor     string        `json:"processor"`
	Elapsed       time.Duration `json:"-"`
}

// Simulator fakes a payment processor. Outcomes are drawn from a seeded
// random source so tests can be deterministic; latency is simulated with a
// context-cancellable sleep. It performs no network I/O.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
}

// NewSimulator creates a payment simulator. seed 0 seeds from the clock.
// Delays of 0 disable simulated latency, which is what tests want.
func NewSimulator(seed int64, minDelay, maxDelay time.Duration) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Simulate runs one payment attempt for the given method. It blocks for the
// simulated processing delay and returns early with ctx.Err() if the context
// is cancelled. The random draws happen before the sleep, so determinism
// under a fixed seed doesn't depend on timing.
func (s *Simulator) Simulate(ctx context.Context, method string) (*Outcome, error) {
	s.mu.Lock()
	delay := s.minDelay
	if spread := s.maxDelay - s.minDelay; spread > 0 {
		delay += time.Duration(s.rng.Int63n(int64(spread)))
	}
	roll := s.rng.Float64()
	reasonIdx := s.rng.Intn(len(failureReasons))
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := &Outcome{
		Processor: ProcessorName(method),
		Elapsed:   delay,
	}
	if roll < SuccessRate(method) {
		out.Success = true
	} else {
		out.FailureReason = failureReasons[reasonIdx]
	}
	return out, nil
}

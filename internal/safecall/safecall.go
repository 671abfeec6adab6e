// Package safecall implements the two-tier invocation policy used for every
// remote operation: try the higher-level client first, then reconstruct the
// same call against the REST API directly. Callers receive either a fully
// populated value or a clear absence signal, never a partial success.
package safecall

import (
	"go.uber.org/zap"
)

// Outcome identifies which tier produced a result.
type Outcome int

const (
	// Primary means the higher-level client call succeeded.
	Primary Outcome = iota
	// Fallback means the direct REST call succeeded after the primary failed.
	Fallback
	// Failed means both tiers failed; the result value is the zero value.
	Failed
)

// Result carries a value together with the tier that produced it.
type Result[T any] struct {
	Value   T
	Outcome Outcome
}

// OK reports whether either tier produced a usable value.
func (r Result[T]) OK() bool { return r.Outcome != Failed }

// Get runs a read operation through both tiers. A failed primary attempt is
// logged at WARN naming the operation; a failed fallback is logged at ERROR
// naming the identifier that could not be served.
func Get[T any](logger *zap.Logger, op, id string, primary, fallback func() (T, error)) Result[T] {
	v, err := primary()
	if err == nil {
		return Result[T]{Value: v, Outcome: Primary}
	}
	logger.Warn("primary client call failed, falling back to REST",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err),
	)

	v, err = fallback()
	if err == nil {
		return Result[T]{Value: v, Outcome: Fallback}
	}
	logger.Error("fallback REST call failed",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err),
	)
	var zero T
	return Result[T]{Value: zero, Outcome: Failed}
}

// Do runs a write operation through both tiers and reports success.
func Do(logger *zap.Logger, op, id string, primary, fallback func() error) bool {
	type unit struct{}
	r := Get(logger, op, id,
		func() (unit, error) { return unit{}, primary() },
		func() (unit, error) { return unit{}, fallback() },
	)
	return r.OK()
}

package sequence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

const (
	maxCounter  = 9999
	firstLetter = 'A'
	lastLetter  = 'Z'
)

// ErrExhausted is returned once the letter space is used up (past Z9999).
// This is a configuration limit, not a recoverable condition: wrapping
// around would reissue barcodes.
var ErrExhausted = errors.New("sequence exhausted")

const maxCASAttempts = 50

// Allocator issues unique barcode identifiers of the form <letter><%04d>
// (A0001 .. Z9999). Concurrent callers are serialized by a compare-and-swap
// on the stored counter, so no two callers ever observe the same
// post-increment state, even across processes.
type Allocator struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewAllocator creates a barcode allocator backed by the given repository.
func NewAllocator(repo store.Repository) *Allocator {
	return &Allocator{repo: repo, logger: util.GetLogger()}
}

// Next atomically advances the counter for a namespace and returns the new
// identifier.
func (a *Allocator) Next(ctx context.Context, namespace string) (string, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := a.repo.GetSequenceCounter(ctx, namespace)
		if errors.Is(err, store.ErrNotFound) {
			seed := models.SequenceCounter{Namespace: namespace, Letter: string(rune(firstLetter)), Counter: 1}
			if err := a.repo.CreateSequenceCounter(ctx, seed); errors.Is(err, store.ErrConflict) {
				continue // another caller seeded the namespace first
			} else if err != nil {
				return "", err
			}
			util.BarcodesIssuedTotal.Inc()
			return Format(seed.Letter, seed.Counter), nil
		}
		if err != nil {
			return "", err
		}

		next, err := advance(*current)
		if err != nil {
			return "", err
		}

		swapped, err := a.repo.CompareAndSwapSequenceCounter(ctx, *current, next)
		if err != nil {
			return "", err
		}
		if !swapped {
			continue
		}
		util.BarcodesIssuedTotal.Inc()
		return Format(next.Letter, next.Counter), nil
	}
	a.logger.Error("Sequence CAS retry budget exhausted", zap.String("namespace", namespace))
	return "", fmt.Errorf("sequence %s: CAS retries exhausted", namespace)
}

// advance computes the successor state, rolling the letter forward when the
// counter would exceed 9999.
func advance(current models.SequenceCounter) (models.SequenceCounter, error) {
	next := current
	if current.Counter >= maxCounter {
		letter := rune(current.Letter[0])
		if letter >= lastLetter {
			return models.SequenceCounter{}, ErrExhausted
		}
		next.Letter = string(letter + 1)
		next.Counter = 1
	} else {
		next.Counter = current.Counter + 1
	}
	return next, nil
}

// Format renders an identifier, e.g. Format("A", 7) == "A0007".
func Format(letter string, counter int) string {
	return fmt.Sprintf("%s%04d", letter, counter)
}

package scheduling

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

var (
	// ErrRepeatNotSchedulable is returned when Repeat reaches CalculateNextDue.
	// Repeat never changes the schedule; callers handle it themselves.
	ErrRepeatNotSchedulable = errors.New("scheduling: Repeat rating must not be scheduled")
	ErrNoBoxIntervals       = errors.New("scheduling: box_intervals is empty")
	ErrUnknownRating        = errors.New("scheduling: unknown rating")
)

// StabilizedMinBox is the lowest box at which a sentence can count as stabilized.
const StabilizedMinBox = 4

// Result is the outcome of scheduling one rating.
type Result struct {
	BoxLevel    int
	DueAt       time.Time
	RelearnLock bool
}

// CalculateNextDue maps a rating on a sentence in currentBox to its new box,
// due date, and relearn lock. A frozen Easy is treated as Next.
// currentDue is accepted for symmetry with the stored state; the schedule is
// always computed from now.
func CalculateNextDue(rating domain.Rating, currentBox int, currentDue time.Time, settings domain.Settings, now time.Time, frozen bool) (Result, error) {
	maxBox := settings.MaxBox()
	if maxBox == 0 {
		return Result{}, ErrNoBoxIntervals
	}
	box := min(max(currentBox, 1), maxBox)

	switch rating {
	case domain.Miss:
		return Result{
			BoxLevel:    1,
			DueAt:       NextSessionDueAt(now, settings),
			RelearnLock: true,
		}, nil
	case domain.Easy:
		if !frozen {
			newBox := min(box+1, maxBox)
			return Result{
				BoxLevel: newBox,
				DueAt:    addDays(now, settings.BoxIntervals[newBox-1], settings),
			}, nil
		}
		fallthrough
	case domain.Next:
		return Result{
			BoxLevel: box,
			DueAt:    addDays(now, settings.BoxIntervals[box-1], settings),
		}, nil
	case domain.Repeat:
		return Result{}, ErrRepeatNotSchedulable
	}
	return Result{}, fmt.Errorf("%w: %v", ErrUnknownRating, rating)
}

// NextSessionDueAt returns the next daily reset strictly after now: today's
// boundary if it is still ahead, otherwise tomorrow's.
func NextSessionDueAt(now time.Time, settings domain.Settings) time.Time {
	return NextResetAfter(now, settings)
}

// IntervalDays is the whole number of days from now to dueAt, rounded up.
func IntervalDays(now, dueAt time.Time) int {
	return int(math.Ceil(dueAt.Sub(now).Hours() / 24))
}

// IsStabilized reports whether a sentence is at box 4 or above and neither
// of its two most recent review events is a Miss. events must belong to the
// sentence; their order does not matter.
func IsStabilized(sentence domain.Sentence, events []domain.ReviewEvent) bool {
	if sentence.Scheduling.BoxLevel < StabilizedMinBox {
		return false
	}
	recent := slices.Clone(events)
	slices.SortFunc(recent, func(a, b domain.ReviewEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	for _, e := range recent[:min(2, len(recent))] {
		if e.Rating == domain.Miss {
			return false
		}
	}
	return true
}

func addDays(now time.Time, days int, settings domain.Settings) time.Time {
	return now.In(settings.Location()).AddDate(0, 0, days)
}

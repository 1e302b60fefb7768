// Package session holds the per-item state machine and the rating handler
// that applies a learner's verdict to a sentence.
package session

import (
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// Phase is the stage an item is in while it is being presented.
type Phase string

const (
	PhasePrompt   Phase = "prompt"   // English prompt is being spoken.
	PhaseResponse Phase = "response" // Learner answers aloud.
	PhaseAnswer   Phase = "answer"   // Target audio is playing.
	PhaseRating   Phase = "rating"   // Waiting for a rating; no timeout.
)

// Trigger is what caused a call to Advance.
type Trigger int

const (
	// TriggerTick is a periodic poll.
	TriggerTick Trigger = iota
	// TriggerPromptSpoken is the prompt speaker's completion signal.
	TriggerPromptSpoken
	// TriggerAnswerEnded is the audio player's finished (or failed) signal.
	TriggerAnswerEnded
)

func (t Trigger) String() string {
	switch t {
	case TriggerTick:
		return "tick"
	case TriggerPromptSpoken:
		return "prompt_spoken"
	case TriggerAnswerEnded:
		return "answer_ended"
	}
	return "unknown"
}

// Item is the presentation state of the sentence currently on screen.
type Item struct {
	Sentence                   domain.Sentence
	ResponseWindowSeconds      float64
	TargetAudioDurationSeconds float64
	// PromptFallbackSeconds is how long a tick waits for the prompt speaker
	// before moving on without its signal.
	PromptFallbackSeconds float64
	Phase                 Phase
	StartTime             time.Time
}

// Step is the result of Advance.
type Step struct {
	Item                Item
	Changed             bool
	ShouldPlayAnswer    bool
	ShouldCaptureRating bool
}

// CalculateResponseWindow is the time given to answer: the target audio
// length plus the configured padding.
func CalculateResponseWindow(targetAudioDurationSeconds float64, settings domain.Settings) float64 {
	return targetAudioDurationSeconds*1.0 + settings.ExtraSeconds
}

// NewItem puts sentence into the prompt phase at now.
func NewItem(sentence domain.Sentence, settings domain.Settings, promptFallback time.Duration, now time.Time) Item {
	audio := sentence.AudioDurationSeconds()
	return Item{
		Sentence:                   sentence,
		ResponseWindowSeconds:      CalculateResponseWindow(audio, settings),
		TargetAudioDurationSeconds: audio,
		PromptFallbackSeconds:      promptFallback.Seconds(),
		Phase:                      PhasePrompt,
		StartTime:                  now,
	}
}

// Advance moves item through prompt -> response -> answer -> rating.
//
// The answer phase only ends on TriggerAnswerEnded: a tick never cuts off
// audio that is still playing. The rating phase is left by the caller once
// a rating has been applied.
func Advance(item Item, trigger Trigger, now time.Time) Step {
	elapsed := now.Sub(item.StartTime).Seconds()

	switch item.Phase {
	case PhasePrompt:
		if trigger == TriggerPromptSpoken || (trigger == TriggerTick && elapsed >= item.PromptFallbackSeconds) {
			return Step{Item: enter(item, PhaseResponse, now), Changed: true}
		}
	case PhaseResponse:
		if trigger == TriggerTick && elapsed >= item.ResponseWindowSeconds {
			return Step{Item: enter(item, PhaseAnswer, now), Changed: true, ShouldPlayAnswer: true}
		}
	case PhaseAnswer:
		if trigger == TriggerAnswerEnded {
			return Step{Item: enter(item, PhaseRating, now), Changed: true, ShouldCaptureRating: true}
		}
	case PhaseRating:
		return Step{Item: item, ShouldCaptureRating: true}
	}
	return Step{Item: item}
}

func enter(item Item, phase Phase, now time.Time) Item {
	item.Phase = phase
	item.StartTime = now
	return item
}

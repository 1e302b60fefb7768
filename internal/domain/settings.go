package domain

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var resetTimePattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// Settings is the learner configuration consumed by the scheduling core.
// It is built once and passed by value; a session keeps its own snapshot.
type Settings struct {
	// DailyResetTime ("HH:MM") marks the start of a learning day.
	DailyResetTime string `json:"daily_reset_time" koanf:"daily_reset_time" validate:"required,resettime"`
	// Timezone is an optional IANA zone; empty means the process local zone.
	Timezone            string  `json:"timezone,omitempty" koanf:"timezone" validate:"omitempty,timezone"`
	BoxIntervals        []int   `json:"box_intervals" koanf:"box_intervals" validate:"required,min=1,dive,gt=0"`
	ExtraSeconds        float64 `json:"extra_seconds" koanf:"extra_seconds" validate:"gte=0"`
	OnboardingCompleted bool    `json:"onboarding_completed" koanf:"onboarding_completed"`
	CurrentLanguage     string  `json:"current_language" koanf:"current_language" validate:"required"`
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		DailyResetTime:  "04:00",
		BoxIntervals:    []int{1, 2, 4, 8, 16, 30},
		ExtraSeconds:    2.0,
		CurrentLanguage: "hu",
	}
}

var settingsValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
})

// RegisterValidations adds the custom tags used by Settings to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("resettime", func(fl validator.FieldLevel) bool {
		return IsValidResetTime(fl.Field().String())
	})
}

// IsValidResetTime reports whether s is a 24-hour "HH:MM" value.
func IsValidResetTime(s string) bool {
	return resetTimePattern.MatchString(s)
}

// Validate checks the settings and returns an error wrapping
// ErrInvalidSettings that names every offending field.
func (s Settings) Validate() error {
	err := settingsValidator().Struct(s)
	if err == nil {
		s.Location()
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "resettime":
			msgs = append(msgs, fmt.Sprintf("daily_reset_time %q must match HH:MM", fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
}

// WithDefaults fills empty fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	def := DefaultSettings()
	if s.DailyResetTime == "" {
		s.DailyResetTime = def.DailyResetTime
	}
	if len(s.BoxIntervals) == 0 {
		s.BoxIntervals = def.BoxIntervals
	}
	if s.CurrentLanguage == "" {
		s.CurrentLanguage = def.CurrentLanguage
	}
	s.BoxIntervals = slices.Clone(s.BoxIntervals)
	return s
}

// MaxBox is the highest box level, equal to the number of intervals.
func (s Settings) MaxBox() int {
	return len(s.BoxIntervals)
}

// ResetClock returns the hour and minute of DailyResetTime. Settings must
// have been validated; a malformed value here is a programming error.
func (s Settings) ResetClock() (hour, minute int) {
	if !IsValidResetTime(s.DailyResetTime) {
		panic(fmt.Sprintf("domain: unvalidated daily_reset_time %q", s.DailyResetTime))
	}
	hour, _ = strconv.Atoi(s.DailyResetTime[:2])
	minute, _ = strconv.Atoi(s.DailyResetTime[3:])
	return hour, minute
}

// locations caches resolved zones by name so the zone database is read
// once per zone.
var locations sync.Map

// Location resolves Timezone, using the local zone when it is empty.
// Settings must have been validated; an unknown zone here is a programming
// error.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	if loc, ok := locations.Load(s.Timezone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		panic(fmt.Sprintf("domain: unvalidated timezone %q", s.Timezone))
	}
	actual, _ := locations.LoadOrStore(s.Timezone, loc)
	return actual.(*time.Location)
}

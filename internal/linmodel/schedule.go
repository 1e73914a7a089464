package linmodel

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// Schedule maps the base learning rate to the rate used in an epoch.
type Schedule func(lr float64, epoch int) float64

// Constant keeps the rate fixed.
func Constant(lr float64, _ int) float64 { return lr }

// InverseTime decays the rate as lr / (1 + epoch/10).
func InverseTime(lr float64, epoch int) float64 { return lr / (1 + float64(epoch)/10) }

// StepDecay halves the rate every 10 epochs.
func StepDecay(lr float64, epoch int) float64 { return lr * math.Pow(0.5, float64(epoch/10)) }

var schedules = map[string]Schedule{
	"Constant":    Constant,
	"InverseTime": InverseTime,
	"StepDecay":   StepDecay,
}

// ScheduleNames lists the schedules a scan file can name.
func ScheduleNames() []string {
	names := make([]string, 0, len(schedules))
	for n := range schedules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ScheduleValue returns the named schedule as a parameter value.
func ScheduleValue(name string) (paramspace.Value, error) {
	s, ok := schedules[name]
	if !ok {
		return paramspace.None(), fmt.Errorf("%w: unknown schedule %q (have %v)", paramspace.ErrConfig, name, ScheduleNames())
	}
	return paramspace.Func(name, s), nil
}

func scheduleOf(v paramspace.Value) (Schedule, error) {
	switch fn := v.Fn().(type) {
	case Schedule:
		return fn, nil
	case func(float64, int) float64:
		return fn, nil
	}
	if s, ok := v.Str(); ok {
		if sched, ok := schedules[s]; ok {
			return sched, nil
		}
	}
	return nil, fmt.Errorf("schedule %v is not a learning rate schedule", v)
}

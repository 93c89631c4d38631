package timer

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"runtime"
	"time"

	"github.com/lthibault/jitterbug/v2"

	log "github.com/sirupsen/logrus"
)

var ErrInvalidInterval = errors.New("timer: interval must be positive")

type Interval struct {
	Duration time.Duration
	Jitter   time.Duration // Maximum deviation in either direction, capped below Duration
}

// boundedJitter spreads ticks uniformly in [d-max, d+max].
type boundedJitter struct {
	max time.Duration
}

func (j boundedJitter) Jitter(d time.Duration) time.Duration {
	m := j.max
	if m >= d {
		m = d / 2
	}
	if m <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(2*m))) - m
}

// RunWithTicker runs f every interval until ctx is cancelled or f returns an error.
// Cancellation is a clean stop and returns nil.
func RunWithTicker(ctx context.Context, interval *Interval, f func(ctx context.Context) error) error {
	if interval == nil || interval.Duration <= 0 {
		return ErrInvalidInterval
	}

	funcName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()

	t := jitterbug.New(interval.Duration, boundedJitter{max: interval.Jitter})
	defer t.Stop()

	log.Debugf("RunWithTicker: running %s every %v (jitter %v)", funcName, interval.Duration, interval.Jitter)

	for {
		select {
		case <-ctx.Done():
			log.Debugf("RunWithTicker: stopped %s", funcName)
			return nil
		case <-t.C:
			if err := f(ctx); err != nil {
				log.Errorf("RunWithTicker: %s returned error: %v", funcName, err)
				return err
			}
		}
	}
}

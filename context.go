package etl

import (
	"context"
	"time"
)

type contextKey string

const (
	startedTimeKey contextKey = "startedTime"
)

func withStartedTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, startedTimeKey, now())
}

func startedTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startedTimeKey).(time.Time)
	return t, ok
}

var now = time.Now

func elapsed(since time.Time) time.Duration {
	return now().Sub(since)
}

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by store reads when the key, field, or list element is
// absent. Callers must distinguish it from transport errors: absence is a
// normal outcome, a transport error is StoreTransient.
var ErrNil = errors.New("store: nil reply")

// StateStore is the shared coordination store. All cross-component state
// (queues, running/active sets, job hashes, control keys) flows through it;
// every primitive is atomic with respect to a single key.
type StateStore interface {
	// Sets
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Lists
	RPush(ctx context.Context, key string, values ...string) error
	LPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, error)
	// BLPop blocks up to timeout for an element; returns ErrNil on timeout.
	BLPop(ctx context.Context, timeout time.Duration, key string) (string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, count int64, value string) error
	LLen(ctx context.Context, key string) (int64, error)

	// Hashes
	HSet(ctx context.Context, key string, fields map[string]interface{}) error
	HSetField(ctx context.Context, key, field string, value interface{}) error
	HSetFieldNX(ctx context.Context, key, field string, value interface{}) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Plain keys
	Set(ctx context.Context, key, value string) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

package candidates

import "context"

// Queue hands each candidate to at most one worker. TryGet never blocks: an
// empty result means no item is left. Join is the drain barrier and returns
// once every Put item has been marked Done.
type Queue interface {
	Put(ctx context.Context, items ...string) error
	TryGet(ctx context.Context) (string, bool, error)
	Done(ctx context.Context) error
	Join(ctx context.Context) error
	Close() error
}

package ingest

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/btr-supply/chomp/internal/model"
)

// Resp3SubscriberFetcher subscribes to one pub/sub channel per distinct
// Target and sets each field from the most recent message on its
// channel: the whole payload, or the value at the field's Selector JSON
// path. Only the latest message is kept; field Handler and Reducer
// expressions are not evaluated here. It mirrors WSAPIFetcher's
// long-lived-connection shape over a RESP3 channel instead of a
// websocket (spec.md §4.6 "resp3_subscriber").
type Resp3SubscriberFetcher struct {
	rdb  *redis.Client
	mu   sync.Mutex
	subs map[string]*resp3Sub
}

type resp3Sub struct {
	mu     sync.RWMutex
	latest string
}

// NewResp3SubscriberFetcher builds a fetcher over an existing client.
func NewResp3SubscriberFetcher(rdb *redis.Client) *Resp3SubscriberFetcher {
	return &Resp3SubscriberFetcher{rdb: rdb, subs: map[string]*resp3Sub{}}
}

func (f *Resp3SubscriberFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		sub := f.subFor(ctx, field.Target)
		sub.mu.RLock()
		latest := sub.latest
		sub.mu.RUnlock()
		if latest == "" {
			continue
		}
		if field.Selector != "" {
			field.Value = jsonSelect(latest, field.Selector)
		} else {
			field.Value = latest
		}
	}
	return nil
}

func (f *Resp3SubscriberFetcher) subFor(ctx context.Context, channel string) *resp3Sub {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.subs[channel]; ok {
		return s
	}
	s := &resp3Sub{}
	f.subs[channel] = s

	pubsub := f.rdb.Subscribe(ctx, channel)
	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			s.mu.Lock()
			s.latest = msg.Payload
			s.mu.Unlock()
		}
	}()
	return s
}

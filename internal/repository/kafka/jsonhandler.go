package kafka

import (
	"context"
	"encoding/json"
)

// JSONHandler decodes each message value into a fresh M before calling handle.
func JSONHandler[M any](handle func(ctx context.Context, key []byte, msg M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var msg M
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		return handle(ctx, key, msg)
	}
}

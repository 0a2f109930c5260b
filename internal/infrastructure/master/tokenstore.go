package master

import (
	"context"
	"fmt"
	"time"

	"tunnelctl/internal/infrastructure/kv"
)

// KVTokenStore backs TokenStore with the shared KV Index, storing the
// bearer token under token:{master_user}.
type KVTokenStore struct {
	idx        kv.Index
	masterUser string
}

// NewKVTokenStore builds a TokenStore keyed on masterUser.
func NewKVTokenStore(idx kv.Index, masterUser string) *KVTokenStore {
	return &KVTokenStore{idx: idx, masterUser: masterUser}
}

func (s *KVTokenStore) key() string {
	return kv.NewKey("token", s.masterUser).String()
}

func (s *KVTokenStore) Get(ctx context.Context) (string, bool, error) {
	v, ok, err := s.idx.Get(ctx, s.key())
	if err != nil {
		return "", false, fmt.Errorf("get master token: %w", err)
	}
	return v, ok, nil
}

func (s *KVTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.idx.Set(ctx, s.key(), token, ttl); err != nil {
		return fmt.Errorf("set master token: %w", err)
	}
	return nil
}

var _ TokenStore = (*KVTokenStore)(nil)

package chat

import (
	"context"

	"sciphi-chat/internal/storage"
)

const (
	FirstTimeKey = "firstTime"
	AcceptedKey  = "accepted"
)

// Onboarding tracks the first-visit terms of service gate.
type Onboarding struct {
	kv storage.KVStore
}

func NewOnboarding(kv storage.KVStore) *Onboarding {
	return &Onboarding{kv: kv}
}

// NeedsTerms reports whether the terms dialog should be shown, and records
// that the visitor has now been seen.
func (o *Onboarding) NeedsTerms(ctx context.Context) (bool, error) {
	_, seen, err := o.kv.Get(ctx, FirstTimeKey)
	if err != nil {
		return false, err
	}
	accepted, err := storage.GetBool(ctx, o.kv, AcceptedKey, false)
	if err != nil {
		return false, err
	}

	if seen && accepted {
		return false, nil
	}
	if err := storage.SetBool(ctx, o.kv, FirstTimeKey, false); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Onboarding) Accept(ctx context.Context) error {
	if err := storage.SetBool(ctx, o.kv, AcceptedKey, true); err != nil {
		return err
	}
	return storage.SetBool(ctx, o.kv, FirstTimeKey, false)
}

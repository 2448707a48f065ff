package fees

import (
	"context"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/store"
)

// StoreConfig reads the engine-wide fee configuration from instance
// storage, where the admin surface writes it.
type StoreConfig struct {
	Store store.Store
}

func (c StoreConfig) FeeStrategy(ctx context.Context) (Strategy, error) {
	var s Strategy
	ok, err := c.Store.Get(ctx, store.K(store.KindFeeStrategy), &s)
	if err != nil {
		return Strategy{}, err
	}
	if !ok {
		return Strategy{}, errs.NotInitialized
	}
	return s, nil
}

func (c StoreConfig) ProtocolFeeBps(ctx context.Context) (uint32, error) {
	var bps uint32
	ok, err := c.Store.Get(ctx, store.K(store.KindProtocolFeeBps), &bps)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.NotInitialized
	}
	return bps, nil
}

// CorridorFor loads the corridor for an ordered country pair, if one is
// configured. Missing corridors are not an error.
func CorridorFor(ctx context.Context, s store.Store, from, to string) (*Corridor, error) {
	var c Corridor
	ok, err := s.Get(ctx, store.K(store.KindCorridor, from, to), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

var _ Config = StoreConfig{}

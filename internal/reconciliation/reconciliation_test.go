package reconciliation

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/event"
)

var custody = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

type stubBooks struct {
	counter uint64
	fees    *big.Int
}

func (b stubBooks) SettlementCounter(context.Context) (uint64, error) { return b.counter, nil }
func (b stubBooks) AccumulatedFees(context.Context) (*big.Int, error) { return b.fees, nil }

type stubBalance struct{ bal *big.Int }

func (s stubBalance) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return s.bal, nil
}

func seedLog(n int) *event.MemoryLog {
	log := event.NewMemoryLog()
	for i := 0; i < n; i++ {
		_ = log.Append(context.Background(), &event.Envelope{Topics: event.TopicSettleComplete})
	}
	return log
}

func TestRunHealthy(t *testing.T) {
	svc := NewService(
		seedLog(3),
		stubBooks{counter: 3, fees: big.NewInt(500)},
		stubBalance{bal: big.NewInt(1_000)},
		custody,
	)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Healthy || !result.CounterMatch || !result.FeesBacked {
		t.Errorf("result = %+v", result)
	}
}

func TestRunCounterMismatch(t *testing.T) {
	svc := NewService(
		seedLog(2),
		stubBooks{counter: 3, fees: big.NewInt(0)},
		stubBalance{bal: big.NewInt(0)},
		custody,
	)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Healthy || result.CounterMatch {
		t.Errorf("mismatch not detected: %+v", result)
	}
}

func TestRunUnbackedFees(t *testing.T) {
	svc := NewService(
		seedLog(0),
		stubBooks{counter: 0, fees: big.NewInt(1_000)},
		stubBalance{bal: big.NewInt(999)},
		custody,
	)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Healthy || result.FeesBacked {
		t.Errorf("unbacked fees not detected: %+v", result)
	}
}

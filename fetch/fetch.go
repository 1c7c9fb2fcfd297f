// Package fetch defines the boundary to market-data providers and the
// worker loop that drains the gap backlog through it: lease a gap,
// fetch its bars, record coverage under compare-and-set, close the
// gap.
//
// The package does not talk to any vendor itself; callers supply a
// Fetcher. The core only consumes the success or failure of a fetch.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/bucket"
)

// Bar is one OHLCV bar as returned by a provider.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Request asks a provider for the bars of one symbol over the
// half-open UTC range [Start, End). RemoteSymbol is the provider-side
// symbol; it equals Symbol when no translation is configured.
type Request struct {
	Symbol       string
	RemoteSymbol string
	Provider     string
	AssetClass   string
	Timeframe    bucket.Timeframe
	Start        time.Time
	End          time.Time
}

// Fetcher turns a request into bars. Implementations wrap a vendor
// HTTP client; errors they return are classified by Retryable.
type Fetcher interface {
	FetchBars(ctx context.Context, req Request) ([]Bar, error)
}

// ProviderError is a classified provider failure. Retry marks errors
// the worker may retry (throttling, transient upstream trouble);
// everything else is terminal for the gap.
type ProviderError struct {
	Msg   string
	Retry bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s", e.Msg)
}

// Retryable reports whether the worker should retry err. Unclassified
// errors are terminal.
func Retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retry
	}
	return false
}

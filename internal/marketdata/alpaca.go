package marketdata

import (
	"context"
	"fmt"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/wonny/watson/pkg/logger"
)

// AlpacaProvider fetches daily bars from the Alpaca data API
// ⭐ SSOT: 시세 데이터 조회는 이 Provider에서만
type AlpacaProvider struct {
	client *alpacamd.Client
	logger *logger.Logger
	now    func() time.Time
}

// NewAlpacaProvider creates a provider from API credentials
func NewAlpacaProvider(apiKey, apiSecret string, log *logger.Logger) *AlpacaProvider {
	return &AlpacaProvider{
		client: alpacamd.NewClient(alpacamd.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		logger: log,
		now:    time.Now,
	}
}

// GetMultipleSymbolsData fetches split/dividend adjusted daily bars
func (p *AlpacaProvider) GetMultipleSymbolsData(ctx context.Context, symbols []string, period string) (Data, error) {
	lookback, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return FromBars(nil), nil
	}

	end := p.now()
	raw, err := p.client.GetMultiBars(symbols, alpacamd.GetBarsRequest{
		TimeFrame:  alpacamd.OneDay,
		Adjustment: alpacamd.All,
		Start:      end.Add(-lookback),
		End:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("get bars for %d symbols: %w", len(symbols), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars := make(map[string][]Bar, len(raw))
	for symbol, bs := range raw {
		out := make([]Bar, len(bs))
		for i, b := range bs {
			out[i] = Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
		}
		bars[symbol] = out
	}

	p.logger.WithFields(map[string]interface{}{
		"requested": len(symbols),
		"received":  len(bars),
		"period":    period,
	}).Info("Fetched market data")

	return FromBars(bars), nil
}

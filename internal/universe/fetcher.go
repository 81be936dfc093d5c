package universe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/watson/pkg/httputil"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/redis"
)

// Source resolves a universe to its constituents
type Source interface {
	GetSymbols(ctx context.Context, u Universe) (*Symbols, error)
}

// Fetcher scrapes index constituents from Slickcharts
// ⭐ SSOT: 지수 구성 종목 조회는 여기서만
type Fetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	cache      *redis.Cache
	cacheTTL   time.Duration
}

// NewFetcher creates a constituent fetcher.
// httpClient should carry a browser User-Agent; the site rejects bare clients.
func NewFetcher(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithCache shares fetched constituent lists through Redis for ttl
func (f *Fetcher) WithCache(cache *redis.Cache, ttl time.Duration) *Fetcher {
	f.cache = cache
	f.cacheTTL = ttl
	return f
}

// GetSymbols returns the constituents of u, from the cache when set
func (f *Fetcher) GetSymbols(ctx context.Context, u Universe) (*Symbols, error) {
	if _, err := Parse(string(u)); err != nil {
		return nil, err
	}
	if f.cache == nil {
		return f.fetch(ctx, u)
	}

	var pairs [][2]string
	err := f.cache.GetOrSet(ctx, redis.ConstituentsKey(u.String()), &pairs, f.cacheTTL, func() (interface{}, error) {
		symbols, err := f.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		return symbols.Pairs(), nil
	})
	if err != nil {
		return nil, err
	}
	return NewSymbols(pairs...), nil
}

// fetch scrapes the constituent table for u
func (f *Fetcher) fetch(ctx context.Context, u Universe) (*Symbols, error) {
	url := fmt.Sprintf("%s/%s", f.baseURL, u)
	resp, err := f.httpClient.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s symbols: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s symbols: unexpected status code: %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s symbols: read body: %w", u, err)
	}

	symbols, err := parseConstituents(string(body))
	if err != nil {
		f.logger.WithError(err).WithField("universe", u.String()).Error("Failed to parse constituents")
		return nil, fmt.Errorf("parse %s symbols: %w", u, err)
	}

	f.logger.WithFields(map[string]interface{}{
		"universe": u.String(),
		"count":    symbols.Len(),
	}).Info("Fetched universe")

	return symbols, nil
}

// parseConstituents reads the first table whose header has a Symbol column
func parseConstituents(html string) (*Symbols, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("empty response")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("invalid html: %w", err)
	}

	var (
		pairs [][2]string
		found bool
	)

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		symbolCol, companyCol := -1, -1
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			switch strings.TrimSpace(cell.Text()) {
			case "Symbol":
				symbolCol = i
			case "Company":
				companyCol = i
			}
		})
		if symbolCol < 0 {
			return true
		}
		found = true

		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() <= symbolCol {
				return
			}
			symbol := strings.TrimSpace(cells.Eq(symbolCol).Text())
			if symbol == "" {
				return
			}
			company := ""
			if companyCol >= 0 && cells.Length() > companyCol {
				company = strings.TrimSpace(cells.Eq(companyCol).Text())
			}
			pairs = append(pairs, [2]string{symbol, company})
		})
		return false
	})

	if !found {
		return nil, fmt.Errorf("no table with a Symbol column")
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("symbol table has no rows")
	}

	return NewSymbols(pairs...), nil
}

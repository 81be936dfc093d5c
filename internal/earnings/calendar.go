package earnings

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/watson/pkg/httputil"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/redis"
)

const dateLayout = "2006-01-02"

// Entry is one row of the Finnhub earnings calendar
type Entry struct {
	Symbol  string `json:"symbol"`
	Date    string `json:"date"`
	Hour    string `json:"hour,omitempty"`
	Quarter int    `json:"quarter,omitempty"`
	Year    int    `json:"year,omitempty"`
}

type calendarResponse struct {
	EarningsCalendar []Entry `json:"earningsCalendar"`
}

// Calendar fetches upcoming earnings dates from Finnhub.
// Each lookahead window is cached as a whole snapshot until the TTL lapses.
// ⭐ SSOT: 실적 발표 일정 조회는 여기서만
type Calendar struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	baseURL    string
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	snapshots map[string]snapshot
}

type snapshot struct {
	dates   map[string][]time.Time
	expires time.Time
}

// NewCalendar creates a Finnhub calendar client.
// httpClient must already carry the X-Finnhub-Token header. cache may be nil.
func NewCalendar(httpClient *httputil.Client, baseURL string, ttl time.Duration, cache *redis.Cache, log *logger.Logger) *Calendar {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Calendar{
		httpClient: httpClient,
		cache:      cache,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		ttl:        ttl,
		now:        time.Now,
		snapshots:  make(map[string]snapshot),
	}
}

// Window returns the [from, to] date range queried for a lookahead.
// One extra day is added so dates on the boundary are not missed.
func (c *Calendar) Window(lookahead int) (from, to string) {
	now := c.now()
	return now.Format(dateLayout), now.AddDate(0, 0, lookahead+1).Format(dateLayout)
}

// GetMultipleEarningsDates returns symbol → upcoming earnings dates for the
// requested symbols only. Symbols without a calendar entry are absent.
func (c *Calendar) GetMultipleEarningsDates(ctx context.Context, symbols []string, lookahead int) (map[string][]time.Time, error) {
	if lookahead < 0 {
		return nil, fmt.Errorf("lookahead must not be negative: %d", lookahead)
	}

	all, err := c.load(ctx, lookahead)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]time.Time)
	for _, symbol := range symbols {
		if dates, ok := all[symbol]; ok {
			result[symbol] = dates
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"requested": len(symbols),
		"with_date": len(result),
		"lookahead": lookahead,
	}).Info("Fetched earnings dates")

	return result, nil
}

func (c *Calendar) load(ctx context.Context, lookahead int) (map[string][]time.Time, error) {
	from, to := c.Window(lookahead)
	key := from + "|" + to

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.snapshots[key]; ok && c.now().Before(s.expires) {
		return s.dates, nil
	}

	entries, err := c.fetch(ctx, from, to)
	if err != nil {
		return nil, err
	}

	dates := make(map[string][]time.Time)
	for _, e := range entries {
		d, err := time.ParseInLocation(dateLayout, e.Date, time.Local)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"symbol": e.Symbol,
				"date":   e.Date,
			}).Warn("Skipping unparseable earnings date")
			continue
		}
		dates[e.Symbol] = append(dates[e.Symbol], d)
	}
	for _, ds := range dates {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
	}

	// 오래된 윈도우는 교체 (전체 스냅샷 단위)
	c.snapshots = map[string]snapshot{key: {dates: dates, expires: c.now().Add(c.ttl)}}
	return dates, nil
}

func (c *Calendar) fetch(ctx context.Context, from, to string) ([]Entry, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	fullURL := fmt.Sprintf("%s/calendar/earnings?%s", c.baseURL, params.Encode())

	get := func() (interface{}, error) {
		var resp calendarResponse
		if err := c.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
			return nil, fmt.Errorf("fetch earnings calendar %s..%s: %w", from, to, err)
		}
		return resp.EarningsCalendar, nil
	}

	if c.cache == nil {
		v, err := get()
		if err != nil {
			return nil, err
		}
		return v.([]Entry), nil
	}

	var entries []Entry
	if err := c.cache.GetOrSet(ctx, redis.EarningsKey(from, to), &entries, c.ttl, get); err != nil {
		return nil, err
	}
	return entries, nil
}

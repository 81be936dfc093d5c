package earnings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/config"
	"github.com/wonny/watson/pkg/httputil"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/redis"
)

const calendarJSON = `{"earningsCalendar":[
	{"symbol":"AAPL","date":"2024-01-20","hour":"amc","quarter":1,"year":2024},
	{"symbol":"TSLA","date":"2024-01-24","hour":"amc","quarter":4,"year":2023},
	{"symbol":"AAPL","date":"2024-01-18","hour":"bmo","quarter":1,"year":2024},
	{"symbol":"BAD","date":"not-a-date"}
]}`

func newTestCalendar(t *testing.T, handler http.HandlerFunc) (*Calendar, *int) {
	t.Helper()
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := httputil.New(&config.Config{}, logger.Nop()).DisableRetry()
	cal := NewCalendar(client, server.URL, time.Hour, nil, logger.Nop())
	cal.now = func() time.Time { return time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local) }
	return cal, &hits
}

func TestWindow(t *testing.T) {
	cal, _ := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {})

	from, to := cal.Window(11)
	assert.Equal(t, "2024-01-15", from)
	assert.Equal(t, "2024-01-27", to)
}

func TestGetMultipleEarningsDates(t *testing.T) {
	var query string
	cal, hits := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/earnings", r.URL.Path)
		query = r.URL.RawQuery
		w.Write([]byte(calendarJSON))
	})

	dates, err := cal.GetMultipleEarningsDates(context.Background(), []string{"AAPL", "MSFT", "BAD"}, 11)
	require.NoError(t, err)

	assert.Equal(t, "from=2024-01-15&to=2024-01-27", query)

	// only requested symbols, unparseable rows dropped
	require.Len(t, dates, 1)
	require.Len(t, dates["AAPL"], 2)
	assert.Equal(t, 18, dates["AAPL"][0].Day())
	assert.Equal(t, 20, dates["AAPL"][1].Day())

	_, ok := dates["MSFT"]
	assert.False(t, ok)

	// second call served from the snapshot
	_, err = cal.GetMultipleEarningsDates(context.Background(), []string{"TSLA"}, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, *hits)
}

func TestGetMultipleEarningsDatesSnapshotExpires(t *testing.T) {
	cal, hits := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(calendarJSON))
	})
	now := time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)
	cal.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cal.GetMultipleEarningsDates(ctx, []string{"AAPL"}, 11)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = cal.GetMultipleEarningsDates(ctx, []string{"AAPL"}, 11)
	require.NoError(t, err)

	assert.Equal(t, 2, *hits)
}

func TestGetMultipleEarningsDatesErrors(t *testing.T) {
	cal, _ := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := cal.GetMultipleEarningsDates(context.Background(), []string{"AAPL"}, 5)
	assert.Error(t, err)

	_, err = cal.GetMultipleEarningsDates(context.Background(), []string{"AAPL"}, -1)
	assert.Error(t, err)
}

func TestGetMultipleEarningsDatesWithDisabledRedis(t *testing.T) {
	cal, hits := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(calendarJSON))
	})
	rc, err := redis.New(&config.Config{})
	require.NoError(t, err)
	cal.cache = redis.NewCache(rc, "watson")

	dates, err := cal.GetMultipleEarningsDates(context.Background(), []string{"TSLA"}, 11)
	require.NoError(t, err)

	assert.Len(t, dates["TSLA"], 1)
	assert.Equal(t, 1, *hits)
}

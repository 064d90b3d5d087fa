package eventbrite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/smyja/web3event/internal/browser/browsertest"
	"github.com/smyja/web3event/internal/testutil"
)

const listing = "https://www.eventbrite.com/d/ny--new-york/token/?page=1"

func TestCapture_FiltersInternalAPIRequests(t *testing.T) {
	sess := browsertest.NewSession().Serve(listing, browsertest.Page{Log: []json.RawMessage{
		browsertest.RequestEntry("https://www.eventbrite.com/api/v3/destination/events/?event_ids=1,2"),
		browsertest.RequestEntry("https://cdn.evbstatic.com/s3-build/app.js"),
		browsertest.RequestEntry("https://www.eventbrite.com/d/ny--new-york/token/"),
		json.RawMessage(`{"method":"Network.loadingFinished","params":{"requestId":"1"}}`),
		browsertest.RequestEntry("https://www.eventbrite.com/api/v3/users/me/"),
	}})
	sleep := &testutil.Sleeper{}

	got, err := NewCapturer(sess, 10*time.Second).WithSleep(sleep.Sleep).Capture(context.Background(), listing)
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, "https://www.eventbrite.com/api/v3/destination/events/?event_ids=1,2", got[0].URL)
	require.Equal(t, "GET", got[0].Method)
	require.Equal(t, "*/*", got[0].Headers["Accept"])
	require.Equal(t, "https://www.eventbrite.com/api/v3/users/me/", got[1].URL)
	require.Equal(t, []time.Duration{10 * time.Second}, sleep.Calls())
	require.Equal(t, []string{listing}, sess.Visited())
}

func TestCapture_SkipsMalformedEntries(t *testing.T) {
	sess := browsertest.NewSession().Serve(listing, browsertest.Page{Log: []json.RawMessage{
		json.RawMessage(`not json`),
		json.RawMessage(`{"params":{}}`),
		json.RawMessage(`{"method":"Network.requestWillBeSent","params":{}}`),
		browsertest.RequestEntry("https://www.eventbrite.com/api/v3/destination/events/?event_ids=5"),
	}})
	sleep := &testutil.Sleeper{}
	rep := &testutil.Reporter{}

	got, err := NewCapturer(sess, time.Second).
		WithSleep(sleep.Sleep).
		WithReporter(rep).
		Capture(context.Background(), listing)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 3, rep.Count(zerolog.ErrorLevel))
}

func TestCapture_IdleWaitUsedWhenEnabled(t *testing.T) {
	sess := browsertest.NewSession()
	sleep := &testutil.Sleeper{}

	_, err := NewCapturer(sess, time.Second).
		WithSleep(sleep.Sleep).
		WithIdleWait(500*time.Millisecond).
		Capture(context.Background(), listing)
	require.NoError(t, err)
	require.Equal(t, 1, sess.IdleCalls())
	require.Empty(t, sleep.Calls())
}

func TestCapture_NavigateError(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	sess := browsertest.NewSession().Serve(listing, browsertest.Page{Err: navErr})
	sleep := &testutil.Sleeper{}

	_, err := NewCapturer(sess, time.Second).WithSleep(sleep.Sleep).Capture(context.Background(), listing)
	require.ErrorIs(t, err, navErr)
	require.Empty(t, sleep.Calls())
}

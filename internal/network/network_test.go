package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roadbook/roadbook/internal/testutil"
)

func TestSwitch_NotifiesOnChange(t *testing.T) {
	s := NewSwitch(false)

	var got []bool
	cancel := s.Subscribe(func(online bool) { got = append(got, online) })

	s.Set(true)
	s.Set(true) // no change, no notification
	s.Set(false)

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, s.Online())

	cancel()
	s.Set(true)
	assert.Equal(t, []bool{true, false}, got, "unsubscribed listener stays quiet")
}

func TestProber_FlipsWithEndpointHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	scheduler := testutil.NewVirtualScheduler()
	p := NewProber(srv.URL, 30*time.Second, scheduler, nil)

	var got []bool
	p.Subscribe(func(online bool) { got = append(got, online) })

	p.Start(context.Background())
	assert.True(t, p.Online(), "first probe runs immediately")

	healthy = false
	scheduler.Advance(30 * time.Second)
	assert.False(t, p.Online())

	healthy = true
	scheduler.Advance(30 * time.Second)
	assert.True(t, p.Online())

	assert.Equal(t, []bool{true, false, true}, got)

	p.Stop()
	assert.Equal(t, 0, scheduler.Pending())
}

func TestProber_UnreachableEndpoint(t *testing.T) {
	scheduler := testutil.NewVirtualScheduler()
	p := NewProber("http://127.0.0.1:1", time.Minute, scheduler, nil)
	defer p.Stop()

	p.Start(context.Background())
	assert.False(t, p.Online())
}

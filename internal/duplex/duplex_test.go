package duplex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendReceivesPairedResponse(t *testing.T) {
	client, server := NewPair[int, string](1)

	go func() {
		req, respond, ok := server.Accept()
		if !ok {
			return
		}
		if req == 7 {
			respond("seven")
		} else {
			respond("other")
		}
	}()

	resp, err := client.Send(7)
	assert.NoError(t, err)
	assert.Equal(t, "seven", resp)
}

func TestSendFailsAfterClose(t *testing.T) {
	client, server := NewPair[int, int](1)
	server.Close()

	_, err := client.Send(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendUnblocksWhenClosedWhileWaiting(t *testing.T) {
	client, server := NewPair[int, int](1)

	errs := make(chan error, 1)
	go func() {
		_, err := client.Send(1)
		errs <- err
	}()

	// Take the request but never respond; closing must release the sender.
	_, _, ok := server.Accept()
	assert.True(t, ok)
	server.Close()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not unblock after close")
	}
}

func TestAcceptReturnsFalseAfterClose(t *testing.T) {
	_, server := NewPair[int, int](1)
	server.Close()

	_, _, ok := server.Accept()
	assert.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	_, server := NewPair[int, int](1)
	assert.NotPanics(t, func() {
		server.Close()
		server.Close()
	})
}

func TestConcurrentSendersAllServed(t *testing.T) {
	client, server := NewPair[int, int](4)

	go func() {
		for {
			req, respond, ok := server.Accept()
			if !ok {
				return
			}
			respond(req * 2)
		}
	}()

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, err := client.Send(n)
			assert.NoError(t, err)
			results[n] = resp
		}(i)
	}
	wg.Wait()
	server.Close()

	for i := 0; i < 16; i++ {
		assert.Equal(t, i*2, results[i])
	}
}

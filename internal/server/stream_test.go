package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

type countingSource struct {
	mu    sync.Mutex
	seq   uint64
	reads int
}

func (c *countingSource) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return nil, errors.New("no frame")
}

func (c *countingSource) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *countingSource) bump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
}

func (c *countingSource) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func TestStreamHandler_SkipsUnchangedFrames(t *testing.T) {
	src := &countingSource{}
	h := NewStreamHandler(src, 100)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, src.readCount(), "nothing stored yet")

	src.bump()
	assert.Eventually(t, func() bool { return src.readCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, src.readCount(), "same frame must not be read again")

	src.bump()
	assert.Eventually(t, func() bool { return src.readCount() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h := NewStreamHandler(&countingSource{}, 0)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

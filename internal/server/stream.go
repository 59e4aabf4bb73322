package server

import (
	"fmt"
	"net/http"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// DefaultStreamFPS caps each MJPEG client.
const DefaultStreamFPS = 15

// FrameSource supplies the latest frame of a stream. The caller closes the
// returned Mat.
type FrameSource interface {
	ReadFrame() (*gocv.Mat, error)
}

// sequencer is implemented by sources that count stored frames, so an
// unchanged frame is not encoded and sent twice.
type sequencer interface {
	Seq() uint64
}

// StreamHandler serves MJPEG frames from a frame source.
type StreamHandler struct {
	source FrameSource
	fps    float64
}

// NewStreamHandler creates a StreamHandler limited to fps frames per second
// per client.
func NewStreamHandler(source FrameSource, fps float64) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{source: source, fps: fps}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	limiter := rate.NewLimiter(rate.Limit(h.fps), 1)
	ctx := r.Context()
	seqSource, sequenced := h.source.(sequencer)
	var lastSeq uint64

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		if sequenced {
			seq := seqSource.Seq()
			if seq == lastSeq {
				continue
			}
			lastSeq = seq
		}

		frame, err := h.source.ReadFrame()
		if err != nil {
			continue
		}

		buf, err := gocv.IMEncode(".jpg", *frame)
		frame.Close()
		if err != nil {
			continue
		}

		_, err = fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len())
		if err == nil {
			_, err = w.Write(buf.GetBytes())
		}
		if err == nil {
			_, err = fmt.Fprintf(w, "\r\n")
		}
		buf.Close()
		if err != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

package main

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Streamer sends JPEG frames to browser clients as a multipart MJPEG stream
type Streamer struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	logger  *zap.SugaredLogger
}

// NewStreamer returns a streamer without clients
func NewStreamer(logger *zap.SugaredLogger) *Streamer {
	return &Streamer{
		clients: make(map[chan []byte]struct{}),
		logger:  logger,
	}
}

// Publish sends a copy of frame to every client.  Clients still busy with
// the previous frame skip this one
func (s *Streamer) Publish(frame []byte) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) == 0 {
		return
	}

	buf := append([]byte(nil), frame...)

	for ch := range s.clients {
		select {
		case ch <- buf:
		default:
		}
	}
}

// ServeHTTP is the HTTP handler used to stream video frames to the browser
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	s.logger.Infow("new client connection established", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ch := make(chan []byte, 1)

	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Infow("client disconnected", "remote", r.RemoteAddr)
			return

		case buf := <-ch:
			// Write the image to the response writer
			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(buf)
			w.Write([]byte("\r\n"))

			// Flush the buffer
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

package tts

import (
	"context"
	"errors"
	"log"
)

// Streamer produces 8kHz μ-law audio for text. Both channels are closed when
// the stream ends; errc carries at most one error.
type Streamer interface {
	StreamMulaw(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Fallback speaks with Primary and switches to Secondary when Primary fails
// before producing any audio.
type Fallback struct {
	Primary   Streamer
	Secondary Streamer
}

func (f Fallback) StreamMulaw(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	if f.Secondary == nil {
		return f.Primary.StreamMulaw(ctx, text)
	}
	out := make(chan []byte, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		n, err := pipe(ctx, f.Primary, text, out)
		if err == nil || n > 0 || ctx.Err() != nil {
			if err != nil {
				errc <- err
			}
			return
		}
		log.Printf("Warning: primary tts failed (%v), using fallback", err)
		if _, err := pipe(ctx, f.Secondary, text, out); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

// pipe forwards one stream into out and returns the number of frames sent.
func pipe(ctx context.Context, s Streamer, text string, out chan<- []byte) (int, error) {
	audio, errc := s.StreamMulaw(ctx, text)
	var n int
	var err error
	for audio != nil || errc != nil {
		select {
		case b, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			select {
			case out <- b:
				n++
			case <-ctx.Done():
				return n, ctx.Err()
			}
		case e, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if e != nil {
				err = e
			}
		}
	}
	return n, err
}

// ErrNoAudio is returned by Synthesizer when a stream ends without audio.
var ErrNoAudio = errors.New("tts: no audio produced")

// Synthesizer renders whole replies for request/response paths.
type Synthesizer struct {
	Streamer Streamer
}

// Synthesize collects the full μ-law rendering of text.
func (s Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, errc := s.Streamer.StreamMulaw(ctx, text)
	var buf []byte
	var err error
	for audio != nil || errc != nil {
		select {
		case b, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			buf = append(buf, b...)
		case e, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if e != nil {
				err = e
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 && text != "" {
		return nil, ErrNoAudio
	}
	return buf, nil
}

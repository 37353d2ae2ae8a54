package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// SpeakerPlayer plays PCM16 payloads on the default output device via beep.
// It implements Player; Play blocks until the chunk finishes.
type SpeakerPlayer struct {
	rate beep.SampleRate
}

var speakerInit sync.Once

// NewSpeakerPlayer opens the output device once per process.
func NewSpeakerPlayer() (*SpeakerPlayer, error) {
	rate := beep.SampleRate(SampleRate)
	var err error
	speakerInit.Do(func() {
		err = speaker.Init(rate, rate.N(100*time.Millisecond))
	})
	if err != nil {
		return nil, err
	}
	return &SpeakerPlayer{rate: rate}, nil
}

func (p *SpeakerPlayer) Play(payload []byte) error {
	samples, err := SamplesFromBytes(payload)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(&pcmStreamer{samples: samples}, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

// pcmStreamer adapts a mono sample buffer to a beep.Streamer.
type pcmStreamer struct {
	samples []float32
	pos     int
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for ; n < len(out) && s.pos < len(s.samples); n++ {
		v := float64(s.samples[s.pos])
		out[n][0] = v
		out[n][1] = v
		s.pos++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

package core

import "time"

const AVG_COUNT = 30

// Metrics keeps a rolling frame time average and a per-second FPS count.
type Metrics struct {
	counter     int
	samples     [AVG_COUNT]float64
	msAvg       float64
	frames      int
	accumulated float64
	fps         float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(frameTime time.Duration) {
	frameMS := float64(frameTime) / float64(time.Millisecond)
	m.samples[m.counter] = frameMS
	if m.counter == AVG_COUNT-1 {
		sum := 0.0
		for _, s := range m.samples {
			sum += s
		}
		m.msAvg = sum / AVG_COUNT
	}
	m.counter = (m.counter + 1) % AVG_COUNT

	m.accumulated += frameMS
	if m.accumulated > 1000 {
		m.fps = float64(m.frames)
		m.accumulated -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

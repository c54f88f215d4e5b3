// Package timestamp synthesizes presentation timestamps for frames that
// arrive without one and tracks the elapsed duration of the encoded
// stream.
package timestamp

// Offset is added to every synthesized timestamp; the first frame is
// stamped 132µs, never zero.
const Offset = 132

// Tracker is owned by a single encoding session and is not safe for
// concurrent use.
type Tracker struct {
	frameRate int64
	index     int64
	cursor    int64

	started bool
	start   int64
	elapsed int64
}

// New returns a Tracker for the given frame rate. A non-positive rate is
// treated as 1 fps.
func New(frameRate int) *Tracker {
	if frameRate <= 0 {
		frameRate = 1
	}
	return &Tracker{frameRate: int64(frameRate)}
}

// Next returns the synthetic timestamp in microseconds for the next frame
// and advances the frame index. Frames are spaced by the frame interval
// truncated to whole microseconds, so the error grows with the index.
func (t *Tracker) Next() int64 {
	pts := t.index*(1_000_000/t.frameRate) + Offset
	t.index++
	t.cursor = pts
	return pts
}

// SetCursor records a caller-supplied timestamp as the latest one
// submitted. The synthetic frame index is left untouched.
func (t *Tracker) SetCursor(pts int64) {
	t.cursor = pts
}

// Cursor returns the most recently submitted timestamp in microseconds.
func (t *Tracker) Cursor() int64 { return t.cursor }

// Observe records a timestamp reported by the encoder output. The first
// observation becomes the start marker and yields zero; later ones yield
// the distance from it.
func (t *Tracker) Observe(pts int64) int64 {
	if !t.started {
		t.started = true
		t.start = pts
		t.elapsed = 0
		return 0
	}
	t.elapsed = pts - t.start
	return t.elapsed
}

// Duration returns the last value Observe produced.
func (t *Tracker) Duration() int64 { return t.elapsed }

// Reset returns the tracker to its initial state.
func (t *Tracker) Reset() {
	t.index, t.cursor = 0, 0
	t.started, t.start, t.elapsed = false, 0, 0
}

// Package media defines the values that flow through an encoding session:
// raw frames handed in by the caller, encoded packets handed to a
// multiplexer, and the descriptor of the single video stream a session
// registers.
package media

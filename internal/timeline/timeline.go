// Package timeline maps presentation time to frame and segment indices.
// Everything here is a pure function over manifest-provided frame rates and
// counts; derived values are recomputed on every call rather than cached.
package timeline

import "math"

// FrameNumber maps a presentation time in seconds to a frame index at the
// given frame rate. Rounding to nearest minimizes the average error between
// presentation time and encoded frame time; flooring would bias every frame
// half a period late.
func FrameNumber(frameRate, seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * frameRate))
}

// Clamp bounds a frame index to [0, frameCount-1].
func Clamp(frame, frameCount int) int {
	if frame < 0 {
		return 0
	}
	if frame > frameCount-1 {
		return frameCount - 1
	}
	return frame
}

// LastFrame is the index of the final frame of a stream.
func LastFrame(frameCount int) int {
	return frameCount - 1
}

// Duration is the playback length in seconds of a stream.
func Duration(frameCount int, frameRate float64) float64 {
	if frameRate <= 0 {
		return 0
	}
	return float64(frameCount) / frameRate
}

// SegmentIndex maps a frame index to its stored segment when the format
// groups framesPerSegment frames into one asset. A grouping of 1 or less is
// the identity mapping.
func SegmentIndex(frame, framesPerSegment int) int {
	if framesPerSegment <= 1 {
		return frame
	}
	return frame / framesPerSegment
}

// Package audio wraps the external ffmpeg tools used to measure and join
// synthesized parts: ffprobe reports part durations and ffmpeg's concat
// demuxer assembles the final file.
package audio

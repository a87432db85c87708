// Package media wraps the external tools that touch video: yt-dlp for
// acquisition, ffprobe for inspection, and ffmpeg for frame sampling and
// audio extraction. Every tool invocation goes through an injectable command
// runner so tests never shell out.
package media

package media

import (
	"net/url"
	"regexp"
	"strings"

	"lectern/internal/services"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{10,12}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ValidateURL checks that raw names a YouTube video and returns the video ID.
// Accepted forms: watch?v=, youtu.be/, /embed/, /shorts/, and /v/ paths.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", services.Wrap(services.ErrValidation, "download", "validate url", "url is empty", nil)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "download", "validate url", "malformed url", err)
	}
	if !youtubeHosts[parsed.Hostname()] {
		return "", services.Wrap(services.ErrValidation, "download", "validate url", "not a youtube url: "+raw, nil)
	}

	videoID := extractVideoID(parsed)
	if videoID == "" {
		return "", services.Wrap(services.ErrValidation, "download", "validate url", "no video id in url: "+raw, nil)
	}
	if !videoIDPattern.MatchString(videoID) {
		return "", services.Wrap(services.ErrValidation, "download", "validate url", "invalid video id: "+videoID, nil)
	}
	return videoID, nil
}

func extractVideoID(parsed *url.URL) string {
	if parsed.Hostname() == "youtu.be" {
		return strings.Trim(parsed.Path, "/")
	}
	if v := parsed.Query().Get("v"); v != "" {
		return v
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) >= 2 {
		switch segments[0] {
		case "embed", "shorts", "v":
			return segments[1]
		}
	}
	return ""
}

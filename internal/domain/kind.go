package domain

import "fmt"

// MediaKind is a closed enumeration. Anything other than audio or video is
// rejected at decode time and never reaches the lifecycle layer.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaKindAudio:
		return MediaKindAudio, nil
	case MediaKindVideo:
		return MediaKindVideo, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

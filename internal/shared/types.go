package shared

import "strings"

// Platform selects policy knobs that differ between desktop and mobile
// clients, such as the minimum acceptable clip size. Short utterances are
// common and valid on mobile, so its thresholds are looser.
type Platform string

const (
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mobile", "ios", "android":
		return PlatformMobile
	default:
		return PlatformDesktop
	}
}

func (p Platform) String() string {
	return string(p)
}

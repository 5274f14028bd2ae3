package youtube

import (
	"fmt"
	"regexp"
	"strconv"
)

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// formatDuration turns an ISO 8601 duration such as PT1H2M3S into 1:02:03.
// Values it cannot parse are returned unchanged.
func formatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || iso == "PT" {
		return iso
	}

	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

package timer

import "fmt"

// FormatDuration renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

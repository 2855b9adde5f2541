package checkpoints

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/defense-intake/internal/intake"
)

// Announcements without hours are assumed to run 8 p.m. to 11 p.m.
const (
	DefaultStartHour = 20
	DefaultEndHour   = 23
)

var checkpointNamespace = uuid.MustParse("5b0c8f0e-3c51-4d8a-9e43-6f2f7b1d9a10")

var (
	countyRe = regexp.MustCompile(`\b([A-Z][a-z]+)\s+County\b`)

	monthDateRe   = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

	timeRangeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?\s*(?:to|until|till|through|-|–)\s*(\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)|midnight)`)
	clockRe     = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?$`)

	locationRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\blocation:\s*([^\n]+)`),
		regexp.MustCompile(`(?i)\b(?:on|along)\s+((?:State Route|SR|U\.?S\.? Route|US|Interstate|I-)\s*\d+[^.\n]*?)(?:\s+(?:from|between|beginning|starting)\b|[.\n]|$)`),
		regexp.MustCompile(`(?i)\b(?:on|at)\s+([A-Z0-9][\w .'-]*?\s(?:Road|Rd|Street|St|Avenue|Ave|Boulevard|Blvd|Pike|Highway|Hwy|Drive|Dr|Parkway|Pkwy)\b[^.\n]*?)(?:\s+(?:from|between|beginning|starting)\b|[.\n]|$)`),
	}

	roadRe = regexp.MustCompile(`(?i)\b(State Route|SR|U\.?S\.? Route|US|Interstate|I-)\s*(\d+)\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseAnnouncement extracts a checkpoint from a press announcement. year is
// used when the text gives no year; times are interpreted in loc.
func ParseAnnouncement(text string, year int, loc *time.Location) (*Checkpoint, error) {
	if loc == nil {
		loc = time.UTC
	}
	text = strings.TrimSpace(text)

	day, err := parseDate(text, year, loc)
	if err != nil {
		return nil, err
	}
	location := parseLocation(text)
	if location == "" {
		return nil, ErrNoLocation
	}

	cp := &Checkpoint{
		County:   parseCounty(text),
		Location: location,
		Roads:    parseRoads(text),
	}
	start, end, ok := parseWindow(text, day)
	if !ok {
		start = atClock(day, DefaultStartHour, 0)
		end = atClock(day, DefaultEndHour, 0)
		cp.TimeAssumed = true
	}
	cp.StartsAt, cp.EndsAt = start, end
	cp.ID = uuid.NewSHA1(checkpointNamespace, []byte(strings.ToLower(cp.County+"|"+start.Format("2006-01-02")+"|"+cp.Location))).String()
	return cp, nil
}

func parseCounty(text string) string {
	m := countyRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if c, ok := intake.ParseCounty(m[1]); ok {
		return string(c)
	}
	return strings.ToLower(m[1])
}

func parseDate(text string, year int, loc *time.Location) (time.Time, error) {
	if m := monthDateRe.FindStringSubmatch(text); m != nil {
		month := months[strings.ToLower(m[1][:3])]
		d, _ := strconv.Atoi(m[2])
		y := year
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		return validDate(y, month, d, loc)
	}
	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y := year
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
		}
		if mo < 1 || mo > 12 {
			return time.Time{}, ErrNoDate
		}
		return validDate(y, time.Month(mo), d, loc)
	}
	return time.Time{}, ErrNoDate
}

func validDate(y int, m time.Month, d int, loc *time.Location) (time.Time, error) {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if t.Day() != d || t.Month() != m {
		return time.Time{}, fmt.Errorf("%w: %s %d is not a real date", ErrNoDate, m, d)
	}
	return t, nil
}

func parseLocation(text string) string {
	for _, re := range locationRes {
		if m := re.FindStringSubmatch(text); m != nil {
			loc := strings.TrimSpace(strings.TrimRight(m[1], " ,;"))
			if loc != "" {
				return loc
			}
		}
	}
	return ""
}

func parseRoads(text string) []string {
	seen := map[string]bool{}
	roads := []string{}
	for _, m := range roadRe.FindAllStringSubmatch(text, -1) {
		var name string
		switch prefix := strings.ToUpper(strings.ReplaceAll(m[1], ".", "")); {
		case prefix == "STATE ROUTE" || prefix == "SR":
			name = "SR " + m[2]
		case strings.HasPrefix(prefix, "US"):
			name = "US " + m[2]
		default:
			name = "I-" + m[2]
		}
		if !seen[name] {
			seen[name] = true
			roads = append(roads, name)
		}
	}
	return roads
}

// parseWindow finds an hour range such as "9 p.m. to 1 a.m.". An end at or
// before the start rolls into the next day.
func parseWindow(text string, day time.Time) (time.Time, time.Time, bool) {
	m := timeRangeRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	endH, endM, endMer, ok := parseClock(m[4])
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	startH, _ := strconv.Atoi(m[1])
	startM, _ := strconv.Atoi(m[2])
	startMer := meridiem(m[3])
	if startMer == "" {
		startMer = endMer
		// "9 to 1 a.m." means the evening before
		if endMer == "am" && startH > endH%12 && startH != 12 {
			startMer = "pm"
		}
	}
	sh, ok1 := to24(startH, startMer)
	eh, ok2 := to24(endH, endMer)
	if !ok1 || !ok2 || startM > 59 || endM > 59 {
		return time.Time{}, time.Time{}, false
	}
	start := atClock(day, sh, startM)
	end := atClock(day, eh, endM)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}

// atClock returns the wall-clock time h:m on day's date in day's location.
func atClock(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func parseClock(s string) (int, int, string, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "midnight") {
		return 12, 0, "am", true
	}
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, "", false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return h, mins, meridiem(m[3]), true
}

func meridiem(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, ".", ""))
	switch s {
	case "am", "pm":
		return s
	}
	return ""
}

func to24(h int, mer string) (int, bool) {
	if h < 1 || h > 12 {
		return 0, false
	}
	switch mer {
	case "am":
		if h == 12 {
			return 0, true
		}
		return h, true
	case "pm":
		if h == 12 {
			return 12, true
		}
		return h + 12, true
	}
	return 0, false
}

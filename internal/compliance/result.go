package compliance

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/jsonutil"
)

// Result is the outcome of one successful backend transformation. A new
// call fully replaces the prior result; there are no merge semantics.
type Result struct {
	// Image is the processed photo returned by the backend.
	Image []byte
	// MIMEType is the encoding of Image as reported by the backend.
	MIMEType string
	// Score is the compliance score in [0, 100]. A missing SCORE marker
	// defaults to 0 (fail-closed): the photo renders, export stays gated.
	Score int
	// Metrics maps criterion name to status string ("Pass", "Fail", ...).
	Metrics map[string]string
	// Report is the narrative audit description.
	Report string
}

// Defaults used when the structured result text is absent or malformed.
// Malformed markers degrade the result; they never discard the image.
const (
	defaultReport    = "Compliance transformation completed."
	defaultMetricKey = "Compliance"
	defaultMetricVal = "Reviewed"
)

var (
	scoreRe = regexp.MustCompile(`SCORE:\s*(\d+)`)
	// The metrics block is a flat JSON object, so a non-greedy match to the
	// first closing brace is sufficient.
	metricsRe = regexp.MustCompile(`(?s)METRICS:\s*(\{.*?\})`)
	reportRe  = regexp.MustCompile(`(?s)REPORT:\s*(.*)\z`)
)

// parseResultText extracts score, metrics, and report from the backend's
// free-text segment. Every marker is optional; absent or unparseable
// markers fall back to documented defaults rather than failing the result.
func parseResultText(text string) (score int, metrics map[string]string, report string) {
	score = 0
	metrics = map[string]string{defaultMetricKey: defaultMetricVal}
	report = defaultReport

	if m := scoreRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			if v > 100 {
				v = 100
			}
			score = v
		}
	} else {
		log.Warn().Msg("Backend response has no SCORE marker, defaulting to 0")
	}

	if m := metricsRe.FindStringSubmatch(text); m != nil {
		parsed, err := jsonutil.ParseObject[map[string]string](m[1])
		if err != nil || len(parsed) == 0 {
			log.Warn().Err(err).Msg("METRICS block present but unparseable, using placeholder")
		} else {
			metrics = parsed
		}
	}

	if m := reportRe.FindStringSubmatch(text); m != nil {
		if r := strings.TrimSpace(m[1]); r != "" {
			report = r
		}
	}

	return score, metrics, report
}

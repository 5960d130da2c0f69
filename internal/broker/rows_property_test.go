package broker

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"optiondesk/pkg/utils"
)

// Property: An expiry given as epoch milliseconds, as a quoted number or as a
// date label always lands on the same IST calendar day.
func TestProperty_ParseExpiryFormatsAgree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, utils.IndiaLocation)

	properties.Property("epoch ms, quoted ms and label parse to the same day", prop.ForAll(
		func(days int, minuteOfDay int) bool {
			at := base.AddDate(0, 0, days).Add(time.Duration(minuteOfDay) * time.Minute)
			ms := at.UnixMilli()
			label := utils.DateLabel(at)

			fromNumber, err := ParseExpiry(json.RawMessage(fmt.Sprintf("%d", ms)))
			if err != nil {
				return false
			}
			fromQuoted, err := ParseExpiry(json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(ms))))
			if err != nil {
				return false
			}
			fromLabel, err := ParseExpiry(json.RawMessage(fmt.Sprintf("%q", label)))
			if err != nil {
				return false
			}
			return fromNumber.Equal(fromLabel) && fromQuoted.Equal(fromLabel) && utils.DateLabel(fromNumber) == label
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}

func TestParseExpiryRejectsGarbage(t *testing.T) {
	for _, raw := range []string{``, `null`, `"soon"`, `{}`} {
		_, err := ParseExpiry(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

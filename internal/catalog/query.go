package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

// SensexStrikeThreshold separates NIFTY strikes from SENSEX strikes when
// guessing the underlying from a typed number.
const SensexStrikeThreshold = 50000

var (
	allDigits   = regexp.MustCompile(`^\d+$`)
	firstNumber = regexp.MustCompile(`\d+`)
)

// Query returns instruments on the underlying whose trading symbol contains
// keyword case-insensitively or, for an all-digit keyword, whose strike text
// contains it. The strike match is a substring match, so "2400" also finds
// 24000 and 124000. An empty keyword matches nothing.
func Query(instruments []models.Instrument, underlying models.Underlying, keyword string) []models.Instrument {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}

	upper := strings.ToUpper(keyword)
	numeric := ""
	if allDigits.MatchString(keyword) {
		numeric = normalizeDigits(keyword)
	}

	var out []models.Instrument
	for _, inst := range instruments {
		if inst.Underlying != underlying {
			continue
		}
		if strings.Contains(strings.ToUpper(inst.TradingSymbol), upper) ||
			(numeric != "" && strings.Contains(inst.StrikePrice.String(), numeric)) {
			out = append(out, inst)
		}
	}
	return out
}

// normalizeDigits strips leading zeros so "024000" matches strike 24000.
func normalizeDigits(s string) string {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// ExpiryLabel is the day-granularity group key for an expiry.
func ExpiryLabel(expiry time.Time) string {
	return utils.DateLabel(expiry)
}

// GroupByExpiry buckets instruments by expiry day, preserving input order
// within each bucket.
func GroupByExpiry(instruments []models.Instrument) map[string][]models.Instrument {
	groups := make(map[string][]models.Instrument)
	for _, inst := range instruments {
		label := ExpiryLabel(inst.Expiry)
		groups[label] = append(groups[label], inst)
	}
	return groups
}

// OrderExpiries keeps the labels dated today or later and sorts them
// ascending. Past and unparseable labels are dropped.
func OrderExpiries(labels []string, today time.Time) []string {
	day := utils.DateOf(today)

	type dated struct {
		label string
		at    time.Time
	}
	var keep []dated
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		at, err := utils.ParseDateLabel(l)
		if err != nil || at.Before(day) {
			continue
		}
		keep = append(keep, dated{label: l, at: at})
	}

	sort.Slice(keep, func(i, j int) bool { return keep[i].at.Before(keep[j].at) })

	out := make([]string, len(keep))
	for i, d := range keep {
		out[i] = d.label
	}
	return out
}

// InferUnderlying guesses the index from the first number in a keyword:
// strikes below 50000 are NIFTY, the rest SENSEX.
func InferUnderlying(keyword string) (models.Underlying, bool) {
	m := firstNumber.FindString(keyword)
	if m == "" {
		return "", false
	}
	n, err := strconv.ParseUint(m, 10, 64)
	if err != nil || n == 0 {
		return "", false
	}
	if n < SensexStrikeThreshold {
		return models.NIFTY, true
	}
	return models.SENSEX, true
}

// SearchResult is the search flow's output: calls and puts grouped by expiry
// plus the upcoming expiries, nearest first.
type SearchResult struct {
	Underlying models.Underlying
	Keyword    string
	Calls      map[string][]models.Instrument
	Puts       map[string][]models.Instrument
	Expiries   []string
}

// Nearest returns the nearest upcoming expiry, if any.
func (r SearchResult) Nearest() (string, bool) {
	if len(r.Expiries) == 0 {
		return "", false
	}
	return r.Expiries[0], true
}

// Empty reports whether nothing upcoming matched.
func (r SearchResult) Empty() bool {
	return len(r.Expiries) == 0
}

// Search queries, splits calls from puts, groups by expiry and orders the
// upcoming expiries.
func Search(instruments []models.Instrument, underlying models.Underlying, keyword string, today time.Time) SearchResult {
	matches := Query(instruments, underlying, keyword)

	var calls, puts []models.Instrument
	for _, inst := range matches {
		switch inst.OptionType {
		case models.CE:
			calls = append(calls, inst)
		case models.PE:
			puts = append(puts, inst)
		}
	}

	res := SearchResult{
		Underlying: underlying,
		Keyword:    keyword,
		Calls:      GroupByExpiry(calls),
		Puts:       GroupByExpiry(puts),
	}

	labels := make([]string, 0, len(res.Calls)+len(res.Puts))
	for l := range res.Calls {
		labels = append(labels, l)
	}
	for l := range res.Puts {
		labels = append(labels, l)
	}
	res.Expiries = OrderExpiries(labels, today)

	return res
}

// Lookup finds an instrument by exact key, or by trading symbol ignoring case.
func Lookup(instruments []models.Instrument, keyOrSymbol string) (models.Instrument, error) {
	q := strings.TrimSpace(keyOrSymbol)
	for _, inst := range instruments {
		if inst.Key == q {
			return inst, nil
		}
	}
	for _, inst := range instruments {
		if strings.EqualFold(inst.TradingSymbol, q) {
			return inst, nil
		}
	}
	return models.Instrument{}, errors.Wrapf(errors.ErrSymbolNotFound, "%q", keyOrSymbol)
}

package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ratefeed/internal/domain"
)

// Defaults are the fallback values used when a raw record lacks an optional
// field or carries one that does not parse.
type Defaults struct {
	Reserve   string
	MinAmount string
	MaxAmount string
	Param     string
}

// RateNormalizer converts raw source records into the canonical schema:
// tickers canonicalized, amounts rescaled to a unit basis, optional fields
// defaulted, duplicates dropped first-seen-wins.
type RateNormalizer struct {
	currency *CurrencyNormalizer
	defaults Defaults
}

func NewRateNormalizer(currency *CurrencyNormalizer, defaults Defaults) *RateNormalizer {
	if currency == nil {
		currency = NewCurrencyNormalizer(nil)
	}
	return &RateNormalizer{currency: currency, defaults: defaults}
}

// Normalize converts one raw record. The second return value is false when
// the record is rejected (empty or equal tickers, non-positive out amount).
func (n *RateNormalizer) Normalize(raw domain.RawRate) (domain.CanonicalRate, bool) {
	from := n.currency.Normalize(raw.FromTicker)
	to := n.currency.Normalize(raw.ToTicker)

	if from == "" || to == "" {
		logrus.Debugf("Rejecting rate with unparseable tickers: %q -> %q", raw.FromTicker, raw.ToTicker)
		return domain.CanonicalRate{}, false
	}
	if from == to {
		logrus.Debugf("Rejecting same-currency direction: %s", from)
		return domain.CanonicalRate{}, false
	}

	in, inOK := parseAmount(raw.InAmount)
	out, outOK := parseAmount(raw.OutAmount)

	if !inOK || in.Sign() <= 0 {
		in = decimal.NewFromInt(1)
	}
	if !outOK || out.Sign() <= 0 {
		logrus.Debugf("Rejecting rate with invalid out amount: %q", raw.OutAmount)
		return domain.CanonicalRate{}, false
	}

	// Rescale so every record quotes one unit of the from currency.
	if !in.Equal(decimal.NewFromInt(1)) {
		out = out.DivRound(in, amountPrecision)
	}

	return domain.CanonicalRate{
		FromCurrency: from,
		ToCurrency:   to,
		InAmount:     "1",
		OutAmount:    formatAmount(out),
		Reserve:      n.fieldOrDefault(raw.Reserve, n.defaults.Reserve),
		MinAmount:    n.fieldOrDefault(raw.MinAmount, n.defaults.MinAmount),
		MaxAmount:    n.fieldOrDefault(raw.MaxAmount, n.defaults.MaxAmount),
		Param:        n.fieldOrDefault(raw.Param, n.defaults.Param),
		SourceID:     raw.SourceID,
		SourceName:   raw.SourceName,
	}, true
}

// NormalizeAll converts a batch in input order. With dedupe enabled only the
// first record per (from, to, source) key is kept; later duplicates are
// dropped silently. The seen set is scoped to this call.
func (n *RateNormalizer) NormalizeAll(raws []domain.RawRate, dedupe bool) []domain.CanonicalRate {
	out := make([]domain.CanonicalRate, 0, len(raws))
	var seen map[domain.PairKey]struct{}
	if dedupe {
		seen = make(map[domain.PairKey]struct{}, len(raws))
	}

	for _, raw := range raws {
		rate, ok := n.Normalize(raw)
		if !ok {
			continue
		}
		if dedupe {
			key := rate.Key()
			if _, dup := seen[key]; dup {
				logrus.Debugf("Skipping duplicate direction %s/%s from %s", key.From, key.To, key.SourceID)
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, rate)
	}

	logrus.Infof("Normalized %d rates from %d raw records", len(out), len(raws))
	return out
}

func (n *RateNormalizer) fieldOrDefault(raw, def string) string {
	if v, ok := parseAmount(raw); ok {
		return formatAmount(v)
	}
	return def
}

// amountPrecision bounds division results; formatting strips the excess.
const amountPrecision = 12

// parseAmount reads a decimal out of a raw string, tolerating comma decimal
// separators, whitespace and stray currency symbols. Returns false when
// nothing numeric remains.
func parseAmount(value string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-':
			return r
		default:
			return -1
		}
	}, cleaned)

	if cleaned == "" || cleaned == "-" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// formatAmount renders a plain decimal string, trailing zeros stripped,
// never scientific notation.
func formatAmount(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

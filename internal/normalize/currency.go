package normalize

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// currencyAliases maps cleaned ticker spellings to canonical codes. Keys are
// already uppercase with separators stripped, matching the cleaning step.
var currencyAliases = map[string]string{
	// Tether variants
	"USDT":        "USDT",
	"TETHER":      "USDT",
	"USDTTRC":     "USDTTRC20",
	"USDTTRC20":   "USDTTRC20",
	"USDTERC":     "USDTERC20",
	"USDTERC20":   "USDTERC20",
	"USDTBEP20":   "USDTBEP20",
	"USDTSOL":     "USDTSOL",
	"TETHERTRC20": "USDTTRC20",
	"TETHERERC20": "USDTERC20",

	// Russian bank cards
	"SBER":       "SBERRUB",
	"SBERBANK":   "SBERRUB",
	"SBERRUB":    "SBERRUB",
	"TINK":       "TCSBRUB",
	"TINKOFF":    "TCSBRUB",
	"TCSB":       "TCSBRUB",
	"TCSBRUB":    "TCSBRUB",
	"TINKOFFRUB": "TCSBRUB",
	"ALFA":       "ACRUB",
	"ALFABANK":   "ACRUB",
	"ACRUB":      "ACRUB",
	"ALFARUB":    "ACRUB",
	"VTB":        "VTBRUB",
	"VTBRUB":     "VTBRUB",
	"RAIFF":      "RFBRUB",
	"RAIFFEISEN": "RFBRUB",
	"RFBRUB":     "RFBRUB",
	"GAZPROM":    "GPBRUB",
	"GPBRUB":     "GPBRUB",
	"ROSBANK":    "ROSBANKRUB",
	"ROSBANKRUB": "ROSBANKRUB",
	"OTKRITIE":   "OPNBNKRUB",
	"OPNBNKRUB":  "OPNBNKRUB",
	"MKB":        "MKBRUB",
	"MKBRUB":     "MKBRUB",
	"POST":       "POSTRUB",
	"POSTBANK":   "POSTRUB",
	"POSTRUB":    "POSTRUB",
	"QIWI":       "QWRUB",
	"QWRUB":      "QWRUB",
	"QIWIRUB":    "QWRUB",
	"YOOMONEY":   "YAMRUB",
	"YAMRUB":     "YAMRUB",
	"YANDEX":     "YAMRUB",

	// Ukrainian banks
	"PRIVAT":     "PUAH",
	"PRIVATBANK": "PUAH",
	"PUAH":       "PUAH",
	"PRIVAT24":   "PUAH",
	"MONO":       "MONOBUAH",
	"MONOBANK":   "MONOBUAH",
	"MONOBUAH":   "MONOBUAH",

	// Crypto
	"BTC":         "BTC",
	"BITCOIN":     "BTC",
	"ETH":         "ETH",
	"ETHEREUM":    "ETH",
	"LTC":         "LTC",
	"LITECOIN":    "LTC",
	"XRP":         "XRP",
	"RIPPLE":      "XRP",
	"DOGE":        "DOGE",
	"DOGECOIN":    "DOGE",
	"TRX":         "TRX",
	"TRON":        "TRX",
	"SOL":         "SOL",
	"SOLANA":      "SOL",
	"BNB":         "BNB",
	"BINANCECOIN": "BNB",
	"MATIC":       "MATIC",
	"POLYGON":     "MATIC",
	"TON":         "TON",
	"TONCOIN":     "TON",
	"NOT":         "NOT",
	"NOTCOIN":     "NOT",

	// Stablecoins
	"USDC":    "USDC",
	"USDCOIN": "USDC",
	"BUSD":    "BUSD",
	"DAI":     "DAI",
	"TUSD":    "TUSD",
	"USDP":    "USDP",

	// Fiat
	"RUB": "RUB",
	"RUR": "RUB",
	"USD": "USD",
	"EUR": "EUR",
	"UAH": "UAH",
	"KZT": "KZT",
	"GEL": "GEL",
	"TRY": "TRY",
	"AZN": "AZN",
	"BYN": "BYN",
	"AMD": "AMD",
	"UZS": "UZS",

	// Payment systems
	"PAYPAL":       "PPUSD",
	"PPUSD":        "PPUSD",
	"PAYEER":       "PRUSD",
	"PRUSD":        "PRUSD",
	"PRRUB":        "PRRUB",
	"ADVCASH":      "ADVCUSD",
	"ADVCUSD":      "ADVCUSD",
	"ADVCRUB":      "ADVCRUB",
	"PERFECT":      "PMUSD",
	"PERFECTMONEY": "PMUSD",
	"PMUSD":        "PMUSD",
	"PMEUR":        "PMEUR",
	"SKRILL":       "SKRUSD",
	"SKRUSD":       "SKRUSD",
	"NETELLER":     "NTUSD",
	"NTUSD":        "NTUSD",
	"WEBMONEY":     "WMZ",
	"WMZ":          "WMZ",
	"WMR":          "WMR",
	"WISE":         "WISEUSD",
	"WISEUSD":      "WISEUSD",
	"WISEEUR":      "WISEEUR",
	"REVOLUT":      "RVLTUSD",
	"RVLTUSD":      "RVLTUSD",

	// Cash
	"CASHRUB": "CASHRUB",
	"CASHUSD": "CASHUSD",
	"CASHEUR": "CASHEUR",
}

// networkSuffixes are chain designators preserved when a ticker ends with one.
var networkSuffixes = []string{
	"TRC20", "ERC20", "BEP20", "SOL", "POLYGON", "ARBITRUM", "OPTIMISM",
	"AVAX", "FTM", "MATIC", "BSC", "BASE", "TON", "TRON",
}

// fiatSuffixes cover "method + fiat" spellings like "SBER RUB".
var fiatSuffixes = []string{"RUB", "USD", "EUR", "UAH", "KZT"}

var tickerCleaner = strings.NewReplacer(
	" ", "", "-", "", "_", "", ".", "", "/", "", "(", "", ")", "",
)

// CurrencyNormalizer canonicalizes ticker strings via the alias table plus
// suffix heuristics. It never rejects: unknown tickers pass through cleaned,
// and invalid pairs are filtered downstream.
type CurrencyNormalizer struct {
	aliases map[string]string
}

func NewCurrencyNormalizer(custom map[string]string) *CurrencyNormalizer {
	aliases := make(map[string]string, len(currencyAliases)+len(custom))
	for k, v := range currencyAliases {
		aliases[k] = v
	}
	for k, v := range custom {
		aliases[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return &CurrencyNormalizer{aliases: aliases}
}

// Normalize returns the canonical code for a ticker, or the cleaned uppercase
// ticker unchanged when nothing matches. Empty input yields an empty string.
func (n *CurrencyNormalizer) Normalize(ticker string) string {
	cleaned := tickerCleaner.Replace(strings.ToUpper(strings.TrimSpace(ticker)))
	if cleaned == "" {
		return ""
	}

	if canonical, ok := n.aliases[cleaned]; ok {
		return canonical
	}

	// Tickers ending with a chain designator keep it as part of the code.
	for _, network := range networkSuffixes {
		if strings.HasSuffix(cleaned, network) {
			return cleaned
		}
	}

	// "Method + fiat" spellings like GAZPROMRUB resolve through the base
	// alias, but only when the alias settles in the same fiat.
	for _, fiat := range fiatSuffixes {
		if len(cleaned) <= len(fiat) || !strings.HasSuffix(cleaned, fiat) {
			continue
		}
		base := strings.TrimSuffix(cleaned, fiat)
		if canonical, ok := n.aliases[base]; ok && strings.HasSuffix(canonical, fiat) {
			return canonical
		}
	}

	logrus.Debugf("Unknown currency ticker: %q (cleaned: %s)", ticker, cleaned)
	return cleaned
}

// AddAlias registers a custom spelling at runtime.
func (n *CurrencyNormalizer) AddAlias(alias, canonical string) {
	n.aliases[strings.ToUpper(alias)] = strings.ToUpper(canonical)
}

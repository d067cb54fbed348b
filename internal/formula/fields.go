package formula

import (
	"fmt"
	"strings"

	"github.com/quantrail/signals/internal/contracts"
)

// fieldAliases maps normalized user-facing field names to canonical metric
// keys. Normalization lower-cases the name and strips underscores and
// spaces, so "PE_Ratio", "pe ratio" and "peratio" all land on the same key.
var fieldAliases = map[string]contracts.Metric{
	"pe":        contracts.MetricPE,
	"peratio":   contracts.MetricPE,
	"pricetoearnings": contracts.MetricPE,

	"pb":          contracts.MetricPB,
	"pbratio":     contracts.MetricPB,
	"pricetobook": contracts.MetricPB,

	"roe":            contracts.MetricROE,
	"returnonequity": contracts.MetricROE,

	"roa":            contracts.MetricROA,
	"returnonassets": contracts.MetricROA,

	"debt":         contracts.MetricDebt,
	"debttoe":      contracts.MetricDebt,
	"debttoequity": contracts.MetricDebt,
	"debtratio":    contracts.MetricDebt,

	"netincome": contracts.MetricNetIncome,
	"netprofit": contracts.MetricNetIncome,

	"revenue": contracts.MetricRevenue,
	"sales":   contracts.MetricRevenue,

	"eps":              contracts.MetricEPS,
	"earningspershare": contracts.MetricEPS,

	"grossmargin":     contracts.MetricGrossMargin,
	"operatingmargin": contracts.MetricOperatingMargin,

	"currentratio": contracts.MetricCurrentRatio,

	"dividendyield": contracts.MetricDividendYield,
	"divyield":      contracts.MetricDividendYield,

	"marketcap":        contracts.MetricMarketCap,
	"mcap":             contracts.MetricMarketCap,
	"marketcapitalization": contracts.MetricMarketCap,
}

// normalizeFieldName lower-cases a field name and strips underscores, spaces
// and slashes, so "P/E Ratio" and "pe_ratio" both land on "peratio".
func normalizeFieldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "/", "")
	return name
}

// ResolveField maps a loose field name to its canonical metric key.
func ResolveField(name string) (contracts.Metric, error) {
	metric, ok := fieldAliases[normalizeFieldName(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", contracts.ErrUnknownField, name)
	}
	return metric, nil
}

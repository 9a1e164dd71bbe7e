package pricing

import (
	"strings"

	"github.com/mansoorceksport/sitekit/internal/domain"
)

// monthlyKeywords mark recurring marketing plans in legacy rows that carry no cadence.
var monthlyKeywords = []string{
	"growth",
	"pro",
	"full digital marketing",
	"blog + social media",
	"content marketing",
}

// ClassifyCadence infers the cadence from a package's name and type using plain
// substring matching on the lower-cased, whitespace-collapsed text.
func ClassifyCadence(name, typ string) domain.Cadence {
	for _, field := range []string{name, typ} {
		norm := normalize(field)
		if norm == "" {
			continue
		}
		for _, kw := range monthlyKeywords {
			if strings.Contains(norm, kw) {
				return domain.CadenceMonthly
			}
		}
	}
	return domain.CadenceYearly
}

// EffectiveCadence prefers the stored cadence and falls back to keyword inference.
func EffectiveCadence(pkg *domain.Package) domain.Cadence {
	if pkg == nil {
		return domain.CadenceYearly
	}
	if pkg.Cadence.Valid() {
		return pkg.Cadence
	}
	return ClassifyCadence(pkg.Name, pkg.Type)
}

// PeriodSuffix is the price label shown next to a base price
func PeriodSuffix(c domain.Cadence) string {
	if c == domain.CadenceMonthly {
		return "/bulan"
	}
	return "/tahun"
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

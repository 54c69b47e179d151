package domain

import (
	"strconv"
	"strings"
)

// ProductKind is the Copernicus product tier.
type ProductKind int

const (
	KindUnknown ProductKind = iota
	KindFirstEstimate
	KindGrading
	KindDelineation
	KindMonitoring
)

func (k ProductKind) String() string {
	switch k {
	case KindFirstEstimate:
		return "first_estimate"
	case KindGrading:
		return "grading"
	case KindDelineation:
		return "delineation"
	case KindMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// Product is a parsed product code such as "DEL_MONIT02" or "GRA".
type Product struct {
	Code string
	Kind ProductKind

	// Version is the trailing number of a monitoring product.
	Version int

	// Delineation and Grading tag monitoring variants (DEL_MONIT, GRA_MONIT).
	Delineation bool
	Grading     bool
}

// ParseProduct classifies a product code. Domestic observations carry an
// empty code and parse to KindUnknown.
func ParseProduct(code string) Product {
	code = strings.ToUpper(strings.TrimSpace(code))
	p := Product{Code: code}
	if code == "" {
		return p
	}
	p.Delineation = strings.Contains(code, "DEL")
	p.Grading = strings.Contains(code, "GRA")

	switch {
	case strings.Contains(code, "MONIT"):
		p.Kind = KindMonitoring
		p.Version = trailingNumber(code)
	case p.Delineation:
		p.Kind = KindDelineation
	case p.Grading:
		p.Kind = KindGrading
	default:
		p.Kind = KindFirstEstimate
	}
	return p
}

func trailingNumber(code string) int {
	i := len(code)
	for i > 0 && code[i-1] >= '0' && code[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(code[i:])
	if err != nil {
		return 0
	}
	return n
}

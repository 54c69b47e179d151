package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProduct(t *testing.T) {
	tests := []struct {
		code string
		want Product
	}{
		{"DEL_MONIT01", Product{Code: "DEL_MONIT01", Kind: KindMonitoring, Version: 1, Delineation: true}},
		{"GRA_MONIT12", Product{Code: "GRA_MONIT12", Kind: KindMonitoring, Version: 12, Grading: true}},
		{"monit03", Product{Code: "MONIT03", Kind: KindMonitoring, Version: 3}},
		{"DEL", Product{Code: "DEL", Kind: KindDelineation, Delineation: true}},
		{"GRA", Product{Code: "GRA", Kind: KindGrading, Grading: true}},
		{"FEP", Product{Code: "FEP", Kind: KindFirstEstimate}},
		{"", Product{}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProduct(tt.code))
		})
	}
}

func candidate(incident, day, code string) Observation {
	return Observation{
		Incident:   incident,
		Date:       MustParseDate(day),
		Geometry:   orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		Product:    ParseProduct(code),
		SourceFile: incident + "_" + code + ".json",
	}
}

func codes(obs []Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Product.Code
	}
	return out
}

func TestResolveDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		products   []string
		wantKeep   []string
		wantDelete []string
		outcome    Outcome
		rule       string
	}{
		{
			name:       "single monitoring product wins",
			products:   []string{"DEL", "DEL_MONIT01", "GRA"},
			wantKeep:   []string{"DEL_MONIT01"},
			wantDelete: []string{"DEL", "GRA"},
			outcome:    OutcomeResolved,
			rule:       "monitoring",
		},
		{
			name:       "highest monitoring version wins",
			products:   []string{"DEL_MONIT01", "GRA_MONIT02", "DEL"},
			wantKeep:   []string{"GRA_MONIT02"},
			wantDelete: []string{"DEL_MONIT01", "DEL"},
			outcome:    OutcomeResolved,
			rule:       "monitoring_latest_version",
		},
		{
			name:       "version tie prefers delineation",
			products:   []string{"GRA_MONIT01", "DEL_MONIT01"},
			wantKeep:   []string{"DEL_MONIT01"},
			wantDelete: []string{"GRA_MONIT01"},
			outcome:    OutcomeResolved,
			rule:       "monitoring_delineation_tiebreak",
		},
		{
			name:     "version tie without delineation is unresolved",
			products: []string{"GRA_MONIT02", "MONIT02"},
			wantKeep: []string{"GRA_MONIT02", "MONIT02"},
			outcome:  OutcomeUnresolved,
			rule:     "monitoring_ambiguous",
		},
		{
			name:       "single delineation beats grading",
			products:   []string{"GRA", "DEL", "FEP"},
			wantKeep:   []string{"DEL"},
			wantDelete: []string{"GRA", "FEP"},
			outcome:    OutcomeResolved,
			rule:       "delineation",
		},
		{
			name:     "two delineations are unresolved",
			products: []string{"DEL", "DEL"},
			wantKeep: []string{"DEL", "DEL"},
			outcome:  OutcomeUnresolved,
			rule:     "delineation_ambiguous",
		},
		{
			name:       "single grading beats first estimate",
			products:   []string{"FEP", "GRA"},
			wantKeep:   []string{"GRA"},
			wantDelete: []string{"FEP"},
			outcome:    OutcomeResolved,
			rule:       "grading",
		},
		{
			name:     "first estimates only fall back to no deletions",
			products: []string{"FEP", "FEP"},
			wantKeep: []string{"FEP", "FEP"},
			outcome:  OutcomeFallback,
			rule:     "first_estimate_fallback",
		},
		{
			name:     "single candidate",
			products: []string{"FEP"},
			wantKeep: []string{"FEP"},
			outcome:  OutcomeResolved,
			rule:     "single",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in []Observation
			for _, p := range tt.products {
				in = append(in, candidate("EMSR686", "20230819", p))
			}
			r := ResolveDuplicates(in)

			assert.Equal(t, tt.wantKeep, codes(r.Keep))
			assert.Equal(t, len(tt.wantDelete), len(r.Delete))
			if len(tt.wantDelete) > 0 {
				assert.Equal(t, tt.wantDelete, codes(r.Delete))
			}
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.rule, r.Rule)
			assert.Equal(t, Key{Incident: "EMSR686", Date: MustParseDate("20230819")}, r.Key)
		})
	}
}

func TestResolveDuplicates_ExactlyOneSurvivesWhenRulesApply(t *testing.T) {
	sets := [][]string{
		{"DEL_MONIT01", "FEP"},
		{"DEL_MONIT01", "GRA_MONIT03", "GRA_MONIT02"},
		{"DEL_MONIT04", "GRA_MONIT04", "DEL"},
		{"DEL", "GRA", "FEP"},
		{"GRA", "FEP", "FEP"},
	}
	for _, set := range sets {
		var in []Observation
		for _, p := range set {
			in = append(in, candidate("EMSR700", "20230901", p))
		}
		r := ResolveDuplicates(in)
		assert.Len(t, r.Keep, 1, set)
		assert.Len(t, r.Delete, len(set)-1, set)
	}
}

// Incident "Beta" day 3 has DEL_MONIT01 and GRA_MONIT01: the delineation
// variant survives.
func TestDeduplicate_MonitoringTieKeepsDelineation(t *testing.T) {
	obs := []Observation{
		candidate("Beta", "20230801", "DEL"),
		candidate("Beta", "20230803", "GRA_MONIT01"),
		candidate("Beta", "20230803", "DEL_MONIT01"),
		candidate("Alpha", "20230802", "FEP"),
	}

	kept, resolutions := Deduplicate(obs)

	require.Len(t, kept, 3)
	assert.Equal(t, "Alpha", kept[0].Incident)
	assert.Equal(t, "DEL", kept[1].Product.Code)
	assert.Equal(t, "DEL_MONIT01", kept[2].Product.Code)

	require.Len(t, resolutions, 1)
	assert.Equal(t, "20230803", resolutions[0].Key.Date.String())
	assert.Equal(t, []string{"GRA_MONIT01"}, codes(resolutions[0].Delete))
}

func TestDeduplicate_UnresolvedKeepsAll(t *testing.T) {
	obs := []Observation{
		candidate("EMSR686", "20230819", "FEP"),
		candidate("EMSR686", "20230819", "FEP"),
	}
	kept, resolutions := Deduplicate(obs)
	assert.Len(t, kept, 2)
	require.Len(t, resolutions, 1)
	assert.Equal(t, OutcomeFallback, resolutions[0].Outcome)
	assert.Empty(t, resolutions[0].Delete)
}

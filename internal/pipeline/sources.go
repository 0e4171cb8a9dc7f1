package pipeline

import (
	"github.com/AngelCh415/perfmerge/internal/aggregate"
	"github.com/AngelCh415/perfmerge/internal/config"
	"github.com/AngelCh415/perfmerge/internal/keys"
)

// Source describes one export: where it lives, which columns make the key
// and how it is aggregated. The base source has neither Metrics nor Split.
type Source struct {
	Name     string
	Location string
	Keys     keys.Spec
	Numeric  []string
	Metrics  []aggregate.Metric
	Split    *Split
}

// Split sums Metric separately for each attribution category.
type Split struct {
	Column     string
	Metric     string
	Categories []aggregate.Category
}

// KnownLabels are the metric columns totalled after a run, in report order.
var KnownLabels = []string{"TW_FC", "TW_LC", "TW_LP", "NB_CO", "NB_FT", "NB_LN", "PO_FC", "PO_LC", "PO_LP"}

// Sources returns the base export followed by the joined ones, in join order.
func Sources(loc config.Sources) (Source, []Source) {
	base := Source{
		Name:     "google_ads",
		Location: loc.GoogleAds,
		Keys:     keys.Spec{Date: "date", Campaign: "campaign_id", Sub: "ad_group_id"},
	}
	others := []Source{
		{
			Name:     "tw",
			Location: loc.TW,
			Keys:     keys.Spec{Date: "event_date", Campaign: "campaign_id", Sub: "adset_id"},
			Numeric:  []string{"pixel_cv_lp", "pixel_cv_fc", "pixel_cv_lc"},
			Metrics: []aggregate.Metric{
				{Source: "pixel_cv_lp", Label: "TW_LP"},
				{Source: "pixel_cv_fc", Label: "TW_FC"},
				{Source: "pixel_cv_lc", Label: "TW_LC"},
			},
		},
		{
			Name:     "nb",
			Location: loc.NB,
			Keys:     keys.Spec{Date: "date", Campaign: "campaign_id", Sub: "adset_id"},
			Numeric:  []string{"ltv_attributed_rev", "ltv_attributed_rev_1st_time"},
			Split: &Split{
				Column: "attribution_model",
				Metric: "ltv_attributed_rev",
				Categories: []aggregate.Category{
					{Value: "clicks only", Label: "NB_CO"},
					{Value: "first touch", Label: "NB_FT"},
					{Value: "last non-direct touch", Label: "NB_LN"},
				},
			},
		},
		{
			Name:     "polar",
			Location: loc.Polar,
			Keys:     keys.Spec{Date: "date", Campaign: "campaign_id", Sub: "adset_id"},
			Numeric:  []string{"first_click_conversion_value", "last_click_conversion_value", "linear_paid_conversion_value"},
			Metrics: []aggregate.Metric{
				{Source: "first_click_conversion_value", Label: "PO_FC"},
				{Source: "last_click_conversion_value", Label: "PO_LC"},
				{Source: "linear_paid_conversion_value", Label: "PO_LP"},
			},
		},
	}
	return base, others
}

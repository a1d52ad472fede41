package models

type AreaKind string

const (
	AreaBuild   AreaKind = "build"
	AreaPlot    AreaKind = "plot"
	AreaTerrace AreaKind = "terrace"
	AreaNone    AreaKind = "none"
)

// Label is the display name of the area figure
func (k AreaKind) Label() string {
	switch k {
	case AreaBuild:
		return "Build area"
	case AreaPlot:
		return "Plot area"
	case AreaTerrace:
		return "Terrace area"
	default:
		return "Area unknown"
	}
}

// villaPlotRatio is the build/plot ratio under which a villa is priced on its plot
const villaPlotRatio = 0.3

// RelevantArea selects the single area figure used for every price-per-area,
// filtering, scoring and display computation. A villa whose build area is
// under 30% of its plot is measured by plot; otherwise build, then plot, then
// terrace, then zero.
func RelevantArea(t PropertyType, build, plot, terrace float64) (float64, AreaKind) {
	if t == TypeVilla && build > 0 && plot > 0 && build < plot*villaPlotRatio {
		return plot, AreaPlot
	}
	switch {
	case build > 0:
		return build, AreaBuild
	case plot > 0:
		return plot, AreaPlot
	case terrace > 0:
		return terrace, AreaTerrace
	}
	return 0, AreaNone
}

package domain

import "sort"

// MaxRenderButtons caps how many traffic buttons a keyboard renders.
// Storage itself is unbounded.
const MaxRenderButtons = 6

// TrafficButton is an admin-managed navigation button rendered under
// welcome and forwarded messages.
type TrafficButton struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// SortButtons returns a copy sorted ascending by Order.
func SortButtons(buttons []TrafficButton) []TrafficButton {
	sorted := append([]TrafficButton(nil), buttons...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}

// RenderButtons returns the buttons a keyboard should show: sorted ascending
// by Order and capped at MaxRenderButtons.
func RenderButtons(buttons []TrafficButton) []TrafficButton {
	sorted := SortButtons(buttons)
	if len(sorted) > MaxRenderButtons {
		sorted = sorted[:MaxRenderButtons]
	}
	return sorted
}

// AdTemplate is a reference text used to detect near-duplicate advertisement
// content. Content lines are the matching units; Threshold overrides the
// global default when set (>0).
type AdTemplate struct {
	Name      string  `json:"name"`
	Content   string  `json:"content"`
	Threshold float64 `json:"threshold"`
}

// EffectiveThreshold resolves the template's detection threshold against the
// global default, clamped to [0, 1].
func (t AdTemplate) EffectiveThreshold(defaultThreshold float64) float64 {
	if t.Threshold > 0 {
		return ClampThreshold(t.Threshold)
	}
	return ClampThreshold(defaultThreshold)
}

package domain

// Config holds the process-wide moderation settings. It is persisted as a
// single document and mutated by read-merge-overwrite through ConfigPatch.
type Config struct {
	ForwardTargetID  string           `json:"forwardTargetId"`
	ReviewTargetID   string           `json:"reviewTargetId,omitempty"`
	WelcomeText      string           `json:"welcomeText"`
	AttachButtons    bool             `json:"attachButtonsToTargetMeta"`
	AdminIDs         []string         `json:"adminIds"`
	AllowlistMode    bool             `json:"allowlistMode"`
	DefaultThreshold float64          `json:"adtplDefaultThreshold"`
	StrictTemplate   bool             `json:"strictTemplate"`
	SourcesAllow     []string         `json:"sourcesAllow,omitempty"`
	Metrics          *MetricsSnapshot `json:"metrics,omitempty"`
}

// MetricsSnapshot is the counter state flushed into Config. Approximate by
// design: the in-memory counters stay authoritative between flushes.
type MetricsSnapshot struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// ConfigPatch is a partial Config update. Nil fields keep the current value.
type ConfigPatch struct {
	ForwardTargetID  *string
	ReviewTargetID   *string
	WelcomeText      *string
	AttachButtons    *bool
	AdminIDs         *[]string
	AllowlistMode    *bool
	DefaultThreshold *float64
	StrictTemplate   *bool
	SourcesAllow     *[]string
	Metrics          *MetricsSnapshot
}

// Apply merges the patch over cur and returns the next Config. Pure function;
// the stores call it before overwriting the persisted document.
func (p ConfigPatch) Apply(cur Config) Config {
	next := cur
	if p.ForwardTargetID != nil {
		next.ForwardTargetID = *p.ForwardTargetID
	}
	if p.ReviewTargetID != nil {
		next.ReviewTargetID = *p.ReviewTargetID
	}
	if p.WelcomeText != nil {
		next.WelcomeText = *p.WelcomeText
	}
	if p.AttachButtons != nil {
		next.AttachButtons = *p.AttachButtons
	}
	if p.AdminIDs != nil {
		next.AdminIDs = append([]string(nil), (*p.AdminIDs)...)
	}
	if p.AllowlistMode != nil {
		next.AllowlistMode = *p.AllowlistMode
	}
	if p.DefaultThreshold != nil {
		next.DefaultThreshold = ClampThreshold(*p.DefaultThreshold)
	}
	if p.StrictTemplate != nil {
		next.StrictTemplate = *p.StrictTemplate
	}
	if p.SourcesAllow != nil {
		next.SourcesAllow = append([]string(nil), (*p.SourcesAllow)...)
	}
	if p.Metrics != nil {
		m := *p.Metrics
		next.Metrics = &m
	}
	return next
}

// ClampThreshold bounds a detection threshold to [0, 1].
func ClampThreshold(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package types

// FitStats summarizes the flag image of one fitted exposure.
type FitStats struct {
	Pixels       int     `json:"pixels"`
	Clean        int     `json:"clean"`
	Saturated    int     `json:"saturated"`
	Jumps        int     `json:"jumps"`
	Insufficient int     `json:"insufficient"`
	LowDOF       int     `json:"low_dof"`
	Masked       int     `json:"masked"`
	MeanRate     float64 `json:"mean_rate"`
	WeightedRate float64 `json:"weighted_rate"`
	DurationMs   float64 `json:"duration_ms"`
}

// UISnapshot is the websocket payload for one fitted exposure. Variance
// is left out because JSON cannot carry +Inf.
type UISnapshot struct {
	Type       string    `json:"type"`
	ExposureID int       `json:"exposure_id"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Rate       []float64 `json:"rate"`
	Flags      []int     `json:"flags"`
	Stats      FitStats  `json:"stats"`
}

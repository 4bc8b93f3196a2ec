package domain

// Region is a rectangular area within a video frame, in pixels.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object found in a frame by the inference collaborator.
// The core never inspects detections; they are carried for display only.
type Detection struct {
	Region     Region  `json:"region"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

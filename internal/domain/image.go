package domain

// ImageStyle selects the prompt template used for image generation.
type ImageStyle string

const (
	StyleScientific  ImageStyle = "scientific"
	StyleEducational ImageStyle = "educational"
	StyleDiagram     ImageStyle = "diagram"
)

// MaxImagesPerRequest bounds one multiple-image generation.
const MaxImagesPerRequest = 10

// DefaultImageStyles is the style rotation used when none is given.
var DefaultImageStyles = []ImageStyle{StyleScientific, StyleEducational, StyleDiagram}

// ImageStatus reports the outcome of an image generation call.
type ImageStatus string

const (
	ImageSuccess ImageStatus = "success"
	ImageError   ImageStatus = "error"
)

// ImageResult describes one image generation attempt.
type ImageResult struct {
	URL         *string     `json:"url"`
	LocalPath   *string     `json:"local_path"`
	Prompt      string      `json:"prompt"`
	Topic       string      `json:"experiment_topic"`
	Style       ImageStyle  `json:"style"`
	AspectRatio string      `json:"aspect_ratio"`
	Status      ImageStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
}

// OK reports whether the generation succeeded.
func (r ImageResult) OK() bool {
	return r.Status == ImageSuccess
}

// ImageURL returns the generated URL or "".
func (r ImageResult) ImageURL() string {
	if r.URL == nil {
		return ""
	}
	return *r.URL
}

// Path returns the local file path or "".
func (r ImageResult) Path() string {
	if r.LocalPath == nil {
		return ""
	}
	return *r.LocalPath
}

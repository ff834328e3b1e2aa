package domain

// Insets are the host surface's safe-area insets in CSS pixels.
type Insets struct {
	Top    int `json:"top" yaml:"top" mapstructure:"top"`
	Bottom int `json:"bottom" yaml:"bottom" mapstructure:"bottom"`
	Left   int `json:"left" yaml:"left" mapstructure:"left"`
	Right  int `json:"right" yaml:"right" mapstructure:"right"`
}

// WebUIEnvironment is the runtime context injected under the reserved prefix.
type WebUIEnvironment struct {
	Insets Insets            `json:"insets"`
	Colors map[string]string `json:"colors"`
}

// Content is a resolved web resource.
type Content struct {
	Path        string
	ContentType string
	Data        []byte
	Injected    bool
}

// NavigationDecision is the outcome of intercepting a navigation.
type NavigationDecision string

const (
	NavigationLoad     NavigationDecision = "load"
	NavigationExternal NavigationDecision = "external"
	NavigationBlock    NavigationDecision = "block"
)

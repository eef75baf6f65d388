package settings

import (
	"net/http"
	"time"

	"github.com/huandu/go-clone"
)

type ClientSettings struct {
	Timeout    time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
	HTTPClient *http.Client  `yaml:"-" json:"-" mapstructure:"-"`
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

// Client returns the configured HTTP client, or one built from the timeout.
func (cs *ClientSettings) Client() *http.Client {
	if cs == nil {
		return http.DefaultClient
	}
	if cs.HTTPClient != nil {
		return cs.HTTPClient
	}
	return &http.Client{Timeout: cs.Timeout}
}

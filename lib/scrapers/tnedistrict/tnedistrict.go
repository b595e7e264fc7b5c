// Package tnedistrict drives the TN e-District certificate verification
// form and turns whatever the portal renders into a bounded set of
// status outcomes.
package tnedistrict

import "time"

type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomePending         Outcome = "pending"
	OutcomeRejected        Outcome = "rejected"
	OutcomeNoRecord        Outcome = "no_record"
	OutcomeCaptchaRequired Outcome = "captcha_required"
	OutcomeAmbiguous       Outcome = "ambiguous"
	OutcomeError           Outcome = "error"
)

// Terminal reports whether the outcome should never be retried.
// Error and Ambiguous are the retry-worthy pair.
func (o Outcome) Terminal() bool {
	return o != OutcomeError && o != OutcomeAmbiguous
}

// Field keys used in StatusResult.Fields. A key is present only when the
// extractor actually found a value; absent is not the same as empty.
const (
	FieldAppNo         = "app_no"
	FieldApplicantName = "applicant_name"
	FieldFatherName    = "father_name"
	FieldGender        = "gender"
	FieldService       = "service"
	FieldRequestDate   = "request_date"
	FieldStatusText    = "status_text"
	FieldRemarks       = "remarks"
)

// StatusResult is the output of one resolved status query. Constructed
// fresh per query, never mutated afterwards.
type StatusResult struct {
	Outcome      Outcome
	Fields       map[string]string
	RawText      string
	ArtifactPath string
	SourceURL    string
}

type Config struct {
	PortalUrl string `json:"portal_url"`
	Headless  bool   `json:"headless"`

	// full navigation budget and the shorter bound used for each
	// selector attempt in a fallback chain
	NavigationTimeoutSec float64 `json:"navigation_timeout_sec"`
	SelectorTimeoutSec   float64 `json:"selector_timeout_sec"`

	// horizontal distance past the input's right edge where the
	// icon-only search control sits; portal-specific tuning value
	ClickOffsetX float64 `json:"click_offset_x"`

	InputSelectors  []string `json:"input_selectors"`
	SearchSelectors []string `json:"search_selectors"`

	ScreenshotDir string `json:"screenshot_dir"`
	MaxRawText    int    `json:"max_raw_text"`
}

func DefaultConfig() Config {
	return Config{
		PortalUrl:            "https://tnedistrict.tn.gov.in/tneda/VerifyCerti.xhtml",
		Headless:             true,
		NavigationTimeoutSec: 60,
		SelectorTimeoutSec:   2.5,
		ClickOffsetX:         18,
		InputSelectors: []string{
			`#form1\:acknumber`,
			`input[id*='ack']`,
			`input[name*='ack']`,
			`input[placeholder*='ack']`,
			`input[type='text']`,
		},
		SearchSelectors: []string{
			`#form1\:acksearch`,
			`a#form1\:acksearch`,
			`img#form1\:acksearch`,
			`button#form1\:acksearch`,
			`input[type='submit']`,
		},
		ScreenshotDir: "screenshots",
		MaxRawText:    4000,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig, so a config
// file that only sets portal_url still gets the selector fallback
// chains and capture bounds. Headless is left untouched: false is a
// deliberate setting there.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PortalUrl == "" {
		c.PortalUrl = def.PortalUrl
	}
	if c.NavigationTimeoutSec <= 0 {
		c.NavigationTimeoutSec = def.NavigationTimeoutSec
	}
	if c.SelectorTimeoutSec <= 0 {
		c.SelectorTimeoutSec = def.SelectorTimeoutSec
	}
	if c.ClickOffsetX == 0 {
		c.ClickOffsetX = def.ClickOffsetX
	}
	if len(c.InputSelectors) == 0 {
		c.InputSelectors = def.InputSelectors
	}
	if len(c.SearchSelectors) == 0 {
		c.SearchSelectors = def.SearchSelectors
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = def.ScreenshotDir
	}
	if c.MaxRawText <= 0 {
		c.MaxRawText = def.MaxRawText
	}
	return c
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeoutSec <= 0 {
		return time.Second * 60
	}
	return time.Duration(c.NavigationTimeoutSec * float64(time.Second))
}

func (c Config) selectorTimeout() time.Duration {
	if c.SelectorTimeoutSec <= 0 {
		return time.Millisecond * 2500
	}
	return time.Duration(c.SelectorTimeoutSec * float64(time.Second))
}

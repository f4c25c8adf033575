package poller

import "strings"

type OutcomeKind int

const (
	OutcomeWrongCaptcha OutcomeKind = iota
	OutcomePending
	OutcomeSuccess
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWrongCaptcha:
		return "wrong_captcha"
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Outcome is the classification of a login response, Body is only set
// for OutcomeSuccess.
type Outcome struct {
	Kind OutcomeKind
	Body string
}

// Markers are the literal phrases the portal uses in its responses.
type Markers struct {
	WrongCaptcha string `json:"wrong_captcha"`
	Pending      string `json:"pending"`
}

func DefaultMarkers() Markers {
	return Markers{
		WrongCaptcha: "验证码错误",
		Pending:      "暂无录取信息",
	}
}

type Classifier struct {
	markers Markers
}

// NewClassifier fills empty markers with the defaults.
func NewClassifier(markers Markers) Classifier {
	defaults := DefaultMarkers()
	if markers.WrongCaptcha == "" {
		markers.WrongCaptcha = defaults.WrongCaptcha
	}
	if markers.Pending == "" {
		markers.Pending = defaults.Pending
	}
	return Classifier{markers: markers}
}

// Classify checks for a rejected captcha before anything else, a page that
// carries both markers is a wrong captcha.
func (c Classifier) Classify(body string) Outcome {
	if strings.Contains(body, c.markers.WrongCaptcha) {
		return Outcome{Kind: OutcomeWrongCaptcha}
	}
	if strings.Contains(body, c.markers.Pending) {
		return Outcome{Kind: OutcomePending}
	}
	return Outcome{Kind: OutcomeSuccess, Body: body}
}

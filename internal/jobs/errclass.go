package jobs

import "strings"

// ErrorType labels a processing failure. Retryability is a property of the
// type, not of the individual failure.
type ErrorType string

const (
	ErrorNetwork        ErrorType = "network"
	ErrorParsing        ErrorType = "parsing"
	ErrorAuthentication ErrorType = "authentication"
	ErrorValidation     ErrorType = "validation"
	ErrorTimeout        ErrorType = "timeout"
	ErrorUnknown        ErrorType = "unknown"
)

// CIMError is a classified processing failure.
type CIMError struct {
	Type           ErrorType `json:"type"`
	Message        string    `json:"message"`
	Agent          string    `json:"agent,omitempty"`
	Retryable      bool      `json:"retryable"`
	RecoveryAction string    `json:"recoveryAction,omitempty"`
}

// classRule maps message substrings to a classification. Rules are checked
// in order and the first match wins. "timeout" appears in the network rule
// ahead of the timeout rule, so timeout-worded messages classify as network;
// the timeout type is reachable through "504" only. Changing this ordering
// changes retry and backoff behavior.
type classRule struct {
	substrings []string
	errType    ErrorType
	retryable  bool
	recovery   string
}

var classRules = []classRule{
	{[]string{"fetch", "network", "timeout"}, ErrorNetwork, true, "Check the AI server connection and try again"},
	{[]string{"401", "authentication", "unauthorized"}, ErrorAuthentication, false, "Please log in again"},
	{[]string{"parse", "json", "syntax"}, ErrorParsing, true, "The analysis result was malformed; retrying may help"},
	{[]string{"validation", "invalid", "format"}, ErrorValidation, false, "Check the uploaded document format"},
	{[]string{"timeout", "504"}, ErrorTimeout, true, "The server took too long; try again"},
}

// Classify turns any failure into a CIMError by matching message text
// case-insensitively against the ordered rule list.
func Classify(err error, agent string) CIMError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)

	for _, rule := range classRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return CIMError{
					Type:           rule.errType,
					Message:        msg,
					Agent:          agent,
					Retryable:      rule.retryable,
					RecoveryAction: rule.recovery,
				}
			}
		}
	}

	return CIMError{
		Type:      ErrorUnknown,
		Message:   msg,
		Agent:     agent,
		Retryable: true,
	}
}

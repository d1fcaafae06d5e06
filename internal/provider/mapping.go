package provider

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kirinyoku/tix-gate/internal/domain"
)

// StatusTable maps a provider's normalized raw status to the canonical one.
// Keys are lower-case strings; numeric codes are keyed by their decimal form.
type StatusTable map[string]domain.CanonicalStatus

var mercadoPagoStatuses = StatusTable{
	"approved":     domain.StatusApproved,
	"authorized":   domain.StatusPending,
	"pending":      domain.StatusPending,
	"in_process":   domain.StatusPending,
	"in_mediation": domain.StatusPending,
	"rejected":     domain.StatusRejected,
	"cancelled":    domain.StatusRejected,
	"refunded":     domain.StatusRefunded,
	"charged_back": domain.StatusRefunded,
}

var qrBankStatuses = StatusTable{
	"0":        domain.StatusPending,
	"1":        domain.StatusApproved,
	"2":        domain.StatusRejected,
	"3":        domain.StatusRejected,
	"4":        domain.StatusRefunded,
	"pending":  domain.StatusPending,
	"waiting":  domain.StatusPending,
	"success":  domain.StatusApproved,
	"paid":     domain.StatusApproved,
	"failed":   domain.StatusRejected,
	"expired":  domain.StatusRejected,
	"reversed": domain.StatusRefunded,
}

// nested status objects are searched under these keys, in order.
var statusKeys = []string{"status", "code", "state"}

const maxStatusDepth = 3

// Canonicalize maps raw (a string, a number or a nested object holding one)
// through table. Unknown or unusable values map to PENDING with mapped=false.
// It never returns APPROVED for something the table does not say is approved.
func Canonicalize(table StatusTable, raw any) (status domain.CanonicalStatus, rawText string, mapped bool) {
	rawText, ok := statusText(raw, 0)
	if !ok {
		return domain.StatusPending, rawText, false
	}

	if s, ok := table[rawText]; ok {
		return s, rawText, true
	}

	return domain.StatusPending, rawText, false
}

func statusText(raw any, depth int) (string, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s, s != ""
	case json.Number:
		return normalizeNumber(v.String())
	case float64:
		return normalizeNumber(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case map[string]any:
		if depth >= maxStatusDepth {
			return "", false
		}
		for _, k := range statusKeys {
			if inner, ok := v[k]; ok {
				return statusText(inner, depth+1)
			}
		}
	}

	return "", false
}

// normalizeNumber accepts integral numbers only, so "1.0" and "1" agree and
// "1.5" matches nothing.
func normalizeNumber(s string) (string, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return s, false
	}
	return strconv.FormatInt(int64(f), 10), true
}

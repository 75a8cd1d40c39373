// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redact provides structure-preserving redaction of sensitive data
// in execution snapshots.
//
// Redaction is idempotent: redact(redact(x)) == redact(x). The input value
// tree is never mutated; a redacted deep copy is returned.
package redact

import (
	"regexp"
	"strings"
)

// Mode determines the level of redaction applied to snapshots.
type Mode string

const (
	// ModeNone disables redaction (not recommended for production).
	ModeNone Mode = "none"

	// ModeStandard applies key-based masking plus pattern-based redaction
	// for common secrets embedded in string values.
	ModeStandard Mode = "standard"

	// ModeStrict redacts all leaf string values (structure and keys preserved).
	ModeStrict Mode = "strict"
)

// Masked is the replacement for fully redacted values.
const Masked = "[REDACTED]"

// Pattern defines a redaction pattern with a name and regular expression.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// StandardPatterns returns the default set of string-content patterns.
func StandardPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "openai_key",
			Regex:       regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			Replacement: Masked,
		},
		{
			Name:        "google_key",
			Regex:       regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
			Replacement: Masked,
		},
		{
			Name:        "aws_key",
			Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			Replacement: "[REDACTED-AWS-KEY]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-\.]{20,})`),
			Replacement: "$1" + Masked,
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED-JWT]",
		},
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Replacement: "[REDACTED-EMAIL]",
		},
		{
			Name:        "phone",
			Regex:       regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
			Replacement: "[REDACTED-PHONE]",
		},
	}
}

// sensitiveFieldNames are exact (case-insensitive) key names that are always
// fully masked.
var sensitiveFieldNames = map[string]struct{}{
	"api_key": {}, "apikey": {}, "api-key": {},
	"secret": {}, "secret_key": {}, "secretkey": {},
	"token": {}, "access_token": {}, "auth_token": {},
	"password": {}, "passwd": {}, "pwd": {},
	"credential": {}, "credentials": {},
	"authorization": {}, "auth": {},
	"private_key": {}, "privatekey": {},
	"session_key": {}, "sessionkey": {},
}

// sensitiveFieldSuffixes mask any key ending with one of these.
var sensitiveFieldSuffixes = []string{
	"_key", "_secret", "_token", "_password", "_credential",
}

// partialMaskFields keep their first and last characters visible; useful for
// identifiers that must stay correlatable without being fully exposed.
var partialMaskFields = map[string]struct{}{
	"project_id": {},
	"user_id":    {},
}

// Redactor applies redaction rules to snapshot value trees.
type Redactor struct {
	mode     Mode
	patterns []Pattern
}

// New creates a redactor with the standard pattern set.
func New(mode Mode) *Redactor {
	return &Redactor{mode: mode, patterns: StandardPatterns()}
}

// NewWithPatterns creates a redactor with custom string-content patterns.
func NewWithPatterns(mode Mode, patterns []Pattern) *Redactor {
	return &Redactor{mode: mode, patterns: patterns}
}

// Redact returns a structurally identical copy of v with sensitive leaves
// masked. The input is never modified.
func (r *Redactor) Redact(v any) any {
	if r == nil || r.mode == ModeNone {
		return deepCopy(v)
	}
	return r.redactValue(v)
}

// RedactMap is Redact specialized for state maps.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return r.Redact(m).(map[string]any)
}

// RedactString applies the pattern set to a bare string value.
func (r *Redactor) RedactString(s string) string {
	if r == nil || r.mode == ModeNone {
		return s
	}
	if r.mode == ModeStrict {
		return Masked
	}
	result := s
	for _, p := range r.patterns {
		result = p.Regex.ReplaceAllString(result, p.Replacement)
	}
	return result
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = r.redactField(k, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	case string:
		return r.RedactString(val)
	default:
		return v
	}
}

func (r *Redactor) redactField(key string, v any) any {
	lower := strings.ToLower(key)
	if _, ok := partialMaskFields[lower]; ok {
		if s, isStr := v.(string); isStr {
			return partialMask(s)
		}
	}
	if isSensitiveField(lower) {
		return Masked
	}
	return r.redactValue(v)
}

func isSensitiveField(lowerKey string) bool {
	if _, ok := sensitiveFieldNames[lowerKey]; ok {
		return true
	}
	for _, suffix := range sensitiveFieldSuffixes {
		if strings.HasSuffix(lowerKey, suffix) {
			return true
		}
	}
	return false
}

// partialMask keeps the first and last 4 characters, capping the masked run
// at 8 characters. Short values are fully masked. Already-masked values pass
// through unchanged so partial masking stays idempotent.
func partialMask(value string) string {
	const show = 4
	if value == Masked || strings.Contains(value, "****") {
		return value
	}
	if len(value) <= show*2 {
		return Masked
	}
	middle := len(value) - show*2
	if middle > 8 {
		middle = 8
	}
	return value[:show] + strings.Repeat("*", middle) + value[len(value)-show:]
}

// deepCopy mirrors record.Clone without importing it; redact must stay a leaf
// package usable by external redactor implementations.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// Copyright 2021 IBM Corp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cors implements the preflight rule matcher: given the
// stored CORS rule set for an account and an incoming preflight
// request, find the first rule that matches.
package cors

import "strings"

// Rule is one entry of a Services.cors rule set.
type Rule struct {
	AllowedOrigins  []string
	AllowedMethods  []string
	AllowedHeaders  []string
	ExposedHeaders  []string
	MaxAgeInSeconds int
}

// Request is the subset of an incoming preflight request the matcher
// needs.
type Request struct {
	Origin          string
	Method          string
	RequestHeaders  []string
}

// Match iterates rules in order and returns the first one whose
// origin, method, and requested headers all match. It returns (nil,
// false) when no rule matches.
func Match(rules []Rule, req Request) (*Rule, bool) {
	for i := range rules {
		if ruleMatches(rules[i], req) {
			return &rules[i], true
		}
	}
	return nil, false
}

func ruleMatches(rule Rule, req Request) bool {
	if !matchesOrigin(rule.AllowedOrigins, req.Origin) {
		return false
	}
	if !matchesMethod(rule.AllowedMethods, req.Method) {
		return false
	}
	for _, h := range req.RequestHeaders {
		if !matchesHeader(rule.AllowedHeaders, h) {
			return false
		}
	}
	return true
}

func matchesOrigin(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func matchesMethod(allowed []string, method string) bool {
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if strings.EqualFold(a, method) {
			return true
		}
	}
	return false
}

// matchesHeader matches a requested header against an allowed
// pattern, where a pattern ending in "*" matches by case-insensitive
// prefix.
func matchesHeader(allowed []string, header string) bool {
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if strings.HasSuffix(a, "*") {
			prefix := strings.TrimSuffix(a, "*")
			if strings.HasPrefix(strings.ToLower(header), strings.ToLower(prefix)) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, header) {
			return true
		}
	}
	return false
}

// ExposedHeaders resolves the rule's exposed headers, expanding a
// trailing "*" entry against the candidate header list the way
// AllowedHeaders suffix-wildcards do, for the emitter that writes the
// Access-Control-Expose-Headers response.
func ExposedHeaders(rule Rule, candidates []string) []string {
	out := make([]string, 0, len(rule.ExposedHeaders))
	for _, e := range rule.ExposedHeaders {
		if !strings.HasSuffix(e, "*") {
			out = append(out, e)
			continue
		}
		prefix := strings.ToLower(strings.TrimSuffix(e, "*"))
		for _, c := range candidates {
			if strings.HasPrefix(strings.ToLower(c), prefix) {
				out = append(out, c)
			}
		}
	}
	return out
}

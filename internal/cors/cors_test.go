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

package cors

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestMatchFirstRuleWins(t *testing.T) {
	g := NewWithT(t)

	rules := []Rule{
		{AllowedOrigins: []string{"https://a.example.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"x-ms-*"}},
		{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"*"}, AllowedHeaders: []string{"*"}},
	}

	rule, ok := Match(rules, Request{Origin: "https://a.example.com", Method: "GET", RequestHeaders: []string{"x-ms-date"}})
	g.Expect(ok).To(BeTrue())
	g.Expect(rule.AllowedOrigins).To(ConsistOf("https://a.example.com"))
}

func TestMatchFallsThroughToWildcardRule(t *testing.T) {
	g := NewWithT(t)

	rules := []Rule{
		{AllowedOrigins: []string{"https://a.example.com"}, AllowedMethods: []string{"GET"}},
		{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"*"}, AllowedHeaders: []string{"*"}},
	}

	rule, ok := Match(rules, Request{Origin: "https://b.example.com", Method: "PUT", RequestHeaders: []string{"content-type"}})
	g.Expect(ok).To(BeTrue())
	g.Expect(rule.AllowedMethods).To(ConsistOf("*"))
}

func TestMatchHeaderPrefixWildcardIsCaseInsensitive(t *testing.T) {
	g := NewWithT(t)

	rules := []Rule{{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"X-MS-*"}}}

	_, ok := Match(rules, Request{Origin: "https://a.example.com", Method: "GET", RequestHeaders: []string{"x-ms-blob-type"}})
	g.Expect(ok).To(BeTrue())

	_, ok = Match(rules, Request{Origin: "https://a.example.com", Method: "GET", RequestHeaders: []string{"authorization"}})
	g.Expect(ok).To(BeFalse())
}

func TestNoRuleMatches(t *testing.T) {
	g := NewWithT(t)

	rules := []Rule{{AllowedOrigins: []string{"https://a.example.com"}, AllowedMethods: []string{"GET"}}}
	_, ok := Match(rules, Request{Origin: "https://b.example.com", Method: "GET"})
	g.Expect(ok).To(BeFalse())
}

func TestExposedHeadersExpandsWildcard(t *testing.T) {
	g := NewWithT(t)

	rule := Rule{ExposedHeaders: []string{"x-ms-*", "etag"}}
	out := ExposedHeaders(rule, []string{"x-ms-meta-foo", "x-ms-blob-type", "content-length"})
	g.Expect(out).To(ConsistOf("x-ms-meta-foo", "x-ms-blob-type", "etag"))
}

// Copyright 2026 The Pulsar Console Authors
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

package rbac

import "strings"

// MatchResourcePattern reports whether a resource path falls under a
// grant's resource pattern.
//
// Rules:
//   - nil, "" or "*" match every path at the grant's level
//   - a pattern ending in "/*" matches the bare prefix and anything
//     below it on a path-segment boundary: "tenantA/*" matches
//     "tenantA", "tenantA/ns1" and "tenantA/ns1/topicX", but never
//     "tenantAB/ns1"
//   - anything else requires exact equality
func MatchResourcePattern(pattern *string, path string) bool {
	if pattern == nil {
		return true
	}
	p := *pattern
	if p == "" || p == "*" {
		return true
	}
	if strings.HasSuffix(p, "/*") {
		prefix := p[:len(p)-2]
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == p
}

// Copyright 2026 The OpenTrusty Authors
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


// Package authz evaluates the permission grants stored on tenant roles.
//
// A permission is a dotted "resource.action" name. A grant is either a
// permission, a "resource.*" wildcard covering every action of a resource,
// or "*" covering everything.
package authz

import (
	"fmt"
	"regexp"
	"strings"
)

// Wildcard grants every permission
const Wildcard = "*"

// Well-known permissions granted by the baseline roles
const (
	PermUsersRead   = "users.read"
	PermUsersWrite  = "users.write"
	PermRolesRead   = "roles.read"
	PermRolesWrite  = "roles.write"
	PermSalesRead   = "sales.read"
	PermSalesWrite  = "sales.write"
	PermSalesAll    = "sales.*"
	PermReportsRead = "reports.read"
)

var grantPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.([a-z][a-z0-9_]*|\*)$`)

// ValidateGrant checks that grant is "*", "resource.*" or "resource.action"
func ValidateGrant(grant string) error {
	if grant == Wildcard || grantPattern.MatchString(grant) {
		return nil
	}
	return fmt.Errorf("invalid permission %q: expected resource.action, resource.* or *", grant)
}

// Allows reports whether any of grants covers permission
func Allows(grants []string, permission string) bool {
	resource, _, _ := strings.Cut(permission, ".")
	for _, g := range grants {
		switch {
		case g == Wildcard, g == permission:
			return true
		case strings.HasSuffix(g, ".*") && strings.TrimSuffix(g, ".*") == resource:
			return true
		}
	}
	return false
}

// Split parses a comma-separated grant list, dropping blanks
func Split(list string) []string {
	var out []string
	for _, g := range strings.Split(list, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

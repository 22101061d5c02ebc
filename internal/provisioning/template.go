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

package provisioning

import (
	"strings"

	"github.com/opentrusty/tenancy/internal/tenant"
)

// Placeholder marks where the database name goes in a connection template
const Placeholder = "{DB}"

// ResolveConnectionString substitutes databaseName into template. The
// template must contain the placeholder exactly once and the name must be a
// safe database identifier.
func ResolveConnectionString(template, databaseName string) (string, error) {
	switch n := strings.Count(template, Placeholder); {
	case n == 0:
		return "", &tenant.ValidationError{Field: "template", Message: "must contain the " + Placeholder + " placeholder"}
	case n > 1:
		return "", &tenant.ValidationError{Field: "template", Message: "must contain the " + Placeholder + " placeholder exactly once"}
	}
	if err := tenant.ValidateDatabaseName(databaseName); err != nil {
		return "", err
	}
	return strings.Replace(template, Placeholder, databaseName, 1), nil
}

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

// -----------------------------------------------------------------------------
// Permission Catalog
// The fixed set of (action, resource level) pairs the console understands.
// -----------------------------------------------------------------------------

// PermissionDefinition is one row of the catalog table.
type PermissionDefinition struct {
	Action      Action
	Level       ResourceLevel
	Description string
}

// PermissionDefinitions is the full catalog, seeded once per deployment.
var PermissionDefinitions = []PermissionDefinition{
	// Topic-level message operations
	{ActionProduce, LevelTopic, "Publish messages to a topic"},
	{ActionConsume, LevelTopic, "Consume messages from a topic"},

	// Namespace-level message operations. The broker grants produce and
	// consume per namespace; the console mirrors that so reverse sync can
	// represent every broker-side grant.
	{ActionProduce, LevelNamespace, "Publish messages to any topic in a namespace"},
	{ActionConsume, LevelNamespace, "Consume messages from any topic in a namespace"},

	// Namespace-level workload operations
	{ActionFunctions, LevelNamespace, "Manage Pulsar Functions in a namespace"},
	{ActionSources, LevelNamespace, "Manage Pulsar IO sources in a namespace"},
	{ActionSinks, LevelNamespace, "Manage Pulsar IO sinks in a namespace"},
	{ActionPackages, LevelNamespace, "Manage packages in a namespace"},

	// Administrative operations per level
	{ActionAdmin, LevelCluster, "Full administrative access to the cluster"},
	{ActionRead, LevelCluster, "Read cluster configuration and status"},
	{ActionAdmin, LevelTenant, "Full administrative access to a tenant"},
	{ActionRead, LevelTenant, "Read tenant configuration and metadata"},
	{ActionWrite, LevelTenant, "Create and modify tenant resources"},
	{ActionAdmin, LevelNamespace, "Full administrative access to a namespace"},
	{ActionRead, LevelNamespace, "Read namespace configuration and topics"},
	{ActionWrite, LevelNamespace, "Create and modify namespace resources"},
	{ActionAdmin, LevelTopic, "Full administrative access to a topic"},
	{ActionRead, LevelTopic, "Read topic metadata and statistics"},
	{ActionWrite, LevelTopic, "Modify topic configuration"},
}

// -----------------------------------------------------------------------------
// System Roles
// Seeded per environment; cannot be renamed or deleted.
// -----------------------------------------------------------------------------

const (
	RoleSuperuser = "superuser"
	RoleAdmin     = "admin"
	RoleOperator  = "operator"
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)

// SystemGrant is one seeded grant of a system role.
type SystemGrant struct {
	Action  Action
	Level   ResourceLevel
	Pattern string
}

// SystemRoleDefinition describes a seeded system role.
type SystemRoleDefinition struct {
	Description string
	Grants      []SystemGrant
}

// SystemRoles maps each system role name to its seeded grants. Every
// grant uses the "*" pattern: system roles are unrestricted at their
// levels; narrower scoping is done with custom roles.
var SystemRoles = map[string]SystemRoleDefinition{
	RoleSuperuser: {
		Description: "Full system access - all permissions on all resources",
		Grants: []SystemGrant{
			{ActionAdmin, LevelCluster, "*"},
			{ActionAdmin, LevelTenant, "*"},
			{ActionAdmin, LevelNamespace, "*"},
			{ActionRead, LevelCluster, "*"},
			{ActionRead, LevelTenant, "*"},
			{ActionRead, LevelNamespace, "*"},
			{ActionRead, LevelTopic, "*"},
			{ActionWrite, LevelTenant, "*"},
			{ActionWrite, LevelNamespace, "*"},
			{ActionWrite, LevelTopic, "*"},
			{ActionProduce, LevelTopic, "*"},
			{ActionConsume, LevelTopic, "*"},
			{ActionFunctions, LevelNamespace, "*"},
			{ActionSources, LevelNamespace, "*"},
			{ActionSinks, LevelNamespace, "*"},
			{ActionPackages, LevelNamespace, "*"},
		},
	},
	RoleAdmin: {
		Description: "Administrative access to tenants and namespaces",
		Grants: []SystemGrant{
			{ActionAdmin, LevelTenant, "*"},
			{ActionAdmin, LevelNamespace, "*"},
			{ActionRead, LevelCluster, "*"},
			{ActionRead, LevelTenant, "*"},
			{ActionRead, LevelNamespace, "*"},
			{ActionRead, LevelTopic, "*"},
			{ActionWrite, LevelTenant, "*"},
			{ActionWrite, LevelNamespace, "*"},
			{ActionWrite, LevelTopic, "*"},
			{ActionProduce, LevelTopic, "*"},
			{ActionConsume, LevelTopic, "*"},
			{ActionFunctions, LevelNamespace, "*"},
			{ActionSources, LevelNamespace, "*"},
			{ActionSinks, LevelNamespace, "*"},
			{ActionPackages, LevelNamespace, "*"},
		},
	},
	RoleOperator: {
		Description: "Operational access - read all, manage topics and messages",
		Grants: []SystemGrant{
			{ActionRead, LevelCluster, "*"},
			{ActionRead, LevelTenant, "*"},
			{ActionRead, LevelNamespace, "*"},
			{ActionRead, LevelTopic, "*"},
			{ActionWrite, LevelTopic, "*"},
			{ActionProduce, LevelTopic, "*"},
			{ActionConsume, LevelTopic, "*"},
		},
	},
	RoleDeveloper: {
		Description: "Developer access - read all, produce and consume messages",
		Grants: []SystemGrant{
			{ActionRead, LevelCluster, "*"},
			{ActionRead, LevelTenant, "*"},
			{ActionRead, LevelNamespace, "*"},
			{ActionRead, LevelTopic, "*"},
			{ActionProduce, LevelTopic, "*"},
			{ActionConsume, LevelTopic, "*"},
		},
	},
	RoleViewer: {
		Description: "Read-only access to all resources",
		Grants: []SystemGrant{
			{ActionRead, LevelCluster, "*"},
			{ActionRead, LevelTenant, "*"},
			{ActionRead, LevelNamespace, "*"},
			{ActionRead, LevelTopic, "*"},
		},
	},
}

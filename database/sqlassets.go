// Package sqlassets embeds the bootstrap DDL so binaries stay self-contained.
package sqlassets

import _ "embed"

//go:embed schema/master/tenants.sql
var MasterTenantsSQL string

//go:embed schema/master/users.sql
var MasterUsersSQL string

//go:embed schema/master/sessions.sql
var MasterSessionsSQL string

//go:embed schema/tenant/users.sql
var TenantUsersSQL string

//go:embed schema/tenant/sessions.sql
var TenantSessionsSQL string

//go:embed schema/tenant/store_access.sql
var TenantStoreAccessSQL string

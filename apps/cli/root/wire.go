package root

import (
	"github.com/storeline-hq/storeline-core/apps/cli/cmd/auth"
	"github.com/storeline-hq/storeline-core/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/storeline-hq/storeline-core/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
}

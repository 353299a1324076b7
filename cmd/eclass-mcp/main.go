package main

import (
	"eclass-mcp/cmd/eclass-mcp/commands"
	"eclass-mcp/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}

package main

import (
	"github.com/sankforever/gkcx/cmd/gkcx/commands"
	"github.com/sankforever/gkcx/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}

package main

import (
	"context"
	"hnabuild/cmd/hnabuild/commands"
	"hnabuild/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}

package main

import (
	"context"

	"certassist-backend/cmd/certassist-cli/commands"
	"certassist-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smyja/web3event/cmd/web3event-cli/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	commands.ExecuteContext(ctx)
}

package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/igefined/generic-trader/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fx.New(options(cfg)).Run()
}

package main

import (
	"fmt"
	"os"
)

const appName = "headphoned"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: headphoned <daemon|status|watch|constants>")
		os.Exit(1)
	}

	cfg, err := loadConfig(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		err = runDaemon(cfg, newLogger(os.Stderr, cfg.LogLevel))
	case "status":
		err = runStatus(cfg.Socket, os.Stdout)
	case "watch":
		err = runWatch(cfg.Socket, os.Stdout)
	case "constants":
		err = runConstants(cfg.Socket, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/fix-session-engine/internal/acceptorapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "acceptor",
		Usage: "FIX session acceptor over TCP and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sessions",
				Value: "",
				Usage: "Sessions file, overrides FIX_SESSIONS_FILE",
			},
		},
		Action: func(cCtx *cli.Context) error {
			return acceptorapp.Run(cCtx.String("sessions"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

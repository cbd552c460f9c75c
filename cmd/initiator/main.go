package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/fix-session-engine/internal/initiatorapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "initiator",
		Usage: "FIX session initiator that keeps its sessions connected",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sessions",
				Value: "",
				Usage: "Sessions file, overrides FIX_SESSIONS_FILE",
			},
		},
		Action: func(cCtx *cli.Context) error {
			return initiatorapp.Run(cCtx.String("sessions"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// Command admin creates or promotes an ADMIN account against the configured
// store. Server configuration flags, environment and -c file apply as for
// the server.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/travelplanner/internal/admin"
	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/flagx"
	"github.com/dmitrijs2005/travelplanner/internal/server"
	"github.com/dmitrijs2005/travelplanner/internal/server/config"
)

func main() {

	ctx := context.Background()

	var email, name string
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	fs.StringVar(&email, "email", "", "admin email")
	fs.StringVar(&name, "name", "Administrator", "display name")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-email", "-name"}))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if email == "" {
		email, err = admin.GetSimpleText(bufio.NewReader(os.Stdin), "Email", os.Stdout)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	pw, err := admin.GetPassword(os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer common.WipeByteArray(pw)

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := admin.CreateAdmin(ctx, app.Sessions(), email, name, pw, os.Stdout); err != nil {
		log.Printf("%v", err)
		return
	}
}

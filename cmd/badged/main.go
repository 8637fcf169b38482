/*
This command provides the executable version of badged, the badge
generation service.

For the list of command line options, run:

	badged -help

For details about the usage, please see the documentation of the root
badged package.
*/
package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/badgeworks/badged"
	"github.com/badgeworks/badged/config"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("%v", err)
	}
	log.Fatal(badged.Run(cfg.ToOptions()))
}

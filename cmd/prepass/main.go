package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/akhenakh/tracklink/config"
	"github.com/akhenakh/tracklink/prepass"
)

var (
	configPath = flag.String("config", "tracker.yaml", "The tracker configuration holding the bulletins")
	lat        = flag.Float64("lat", 48.8, "Lat")
	lng        = flag.Float64("lng", 2.2, "Lng")
	from       = flag.Int64("from", 0, "Unix time to start from, now when 0")
	count      = flag.Int("count", 10, "Maximum number of passes to list")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal(err)
	}
	config.Normalize(cfg)

	now := uint32(time.Now().Unix())
	if *from != 0 {
		now = uint32(*from)
	}

	pcfg := cfg.Satellite.Prepass
	pcfg.MaxPasses = *count
	passes, err := prepass.Passes(cfg.Satellite.Bulletins, pcfg, *lng, *lat, now)
	if err != nil {
		log.Fatal(err)
	}

	next, err := prepass.Predict(cfg.Satellite.Bulletins, cfg.Satellite.Prepass, *lng, *lat, now)
	if err != nil {
		log.Println("no next pass", err)
	} else {
		log.Println("next pass midpoint", time.Unix(int64(next), 0).UTC())
	}

	for i, p := range passes {
		if i == *count {
			break
		}
		fmt.Printf("%s %s -> %s peak %.1f°\n",
			p.SatID,
			time.Unix(int64(p.Start), 0).UTC().Format(time.RFC3339),
			time.Unix(int64(p.End), 0).UTC().Format(time.RFC3339),
			p.PeakElevation,
		)
	}
}

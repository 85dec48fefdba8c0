package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/shadow"
)

var (
	id      = flag.Uint("id", 0x1234567, "The ARGOS platform id")
	lat     = flag.Float64("lat", 48.8, "The Latitude")
	lng     = flag.Float64("lng", 2.2, "The Longitude")
	battery = flag.Uint("battery", 80, "The battery level in percent, omitted when above 100")
	payload = flag.String("payload", "", "A raw hex payload sent instead of the status")
	decode  = flag.String("decode", "", "Decode a hex frame instead of encoding")
)

func main() {
	flag.Parse()

	if *decode != "" {
		b, err := hex.DecodeString(*decode)
		if err != nil {
			log.Fatal(err)
		}
		f, err := argos.Decode(b)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Class %s Device %#07x\n", f.Class, f.DeviceID)
		if f.Class == argos.ClassZTE {
			return
		}
		st, err := devstatus.DecodeSatellite(f.Payload)
		if err != nil {
			fmt.Println("Payload", hex.EncodeToString(f.Payload))
			return
		}
		fmt.Printf("Status %+v\n", shadow.NewStatus(st, st.Location.Timestamp))
		return
	}

	var p []byte
	if *payload != "" {
		var err error
		p, err = hex.DecodeString(*payload)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		var st devstatus.DeviceStatus
		st.Location = devstatus.Location{Latitude: *lat, Longitude: *lng, Timestamp: uint32(time.Now().Unix())}
		st.Set(devstatus.FieldLocation)
		if *battery <= 100 {
			st.BatteryLevel = uint8(*battery)
			st.Set(devstatus.FieldBatteryLevel)
		}
		p = devstatus.EncodeSatellite(st, argos.MaxPayload)
	}

	frame, err := argos.Encode(uint32(*id), p)
	if err != nil {
		log.Fatal(err)
	}
	f, err := argos.Decode(frame)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Class", f.Class)
	fmt.Println("Frame", hex.EncodeToString(frame))
}

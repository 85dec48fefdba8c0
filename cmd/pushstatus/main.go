package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/shadow"
)

var (
	url     = flag.String("url", "http://localhost:9201", "The shadow service URL")
	device  = flag.String("device", "tracker-1", "The device name")
	secret  = flag.String("secret", "", "The secret shared with the shadow service")
	lat     = flag.Float64("lat", 48.8, "Lat")
	lng     = flag.Float64("lng", 2.2, "Lng")
	battery = flag.Uint("battery", 80, "The battery level in percent")

	argosAddr = flag.String("argosAddr", "", "Send an ARGOS frame to this ground station address instead")
	argosID   = flag.Uint("argosID", 0x1234567, "The ARGOS platform id")
)

func main() {
	flag.Parse()

	now := uint32(time.Now().Unix())
	var st devstatus.DeviceStatus
	st.Location = devstatus.Location{Latitude: *lat, Longitude: *lng, Timestamp: now}
	st.Set(devstatus.FieldLocation)
	st.BatteryLevel = uint8(*battery)
	st.Set(devstatus.FieldBatteryLevel)

	if *argosAddr != "" {
		frame, err := argos.Encode(uint32(*argosID), devstatus.EncodeSatellite(st, argos.MaxPayload))
		if err != nil {
			log.Fatal(err)
		}
		raddr, err := net.ResolveUDPAddr("udp", *argosAddr)
		if err != nil {
			log.Fatal(err)
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()

		if _, err := conn.Write(frame); err != nil {
			log.Fatal(err)
		}
		log.Println("sent", len(frame), "bytes frame")
		return
	}

	if *secret == "" {
		log.Fatal("a secret is required")
	}
	token, err := shadow.IssueToken([]byte(*secret), *device, time.Minute)
	if err != nil {
		log.Fatal(err)
	}

	b, err := json.Marshal(shadow.NewStatus(st, now))
	if err != nil {
		log.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPut, *url+"/v1/devices/"+*device+"/status", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	log.Println("status", resp.Status)
}

// Command rfidgate runs either side of the RFID access-control pipeline:
//
//	rfidgate center  decision service (HTTP API, relay, audit log)
//	rfidgate edge    reader agent (serial decode, outbox, uplink)
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

// Command bs-detector assembles flows from captured traffic and classifies
// them as normal or botnet traffic.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	opts := &options{}
	if err := newRootCmd(opts).Execute(); err != nil {
		if opts.verbose {
			log.Errorf("%+v", err)
		} else {
			log.Error(err)
		}
		os.Exit(1)
	}
}

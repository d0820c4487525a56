// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// The relayd program is the file relay dæmon.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/NVIDIA/filerelay/relayd"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("no .conf file specified")
	}

	errChan := make(chan error, 1) // Must be buffered to avoid race
	var wg sync.WaitGroup

	// empty signal list (final argument) means "catch all signals" its possible to catch
	go relayd.Daemon(os.Args[1], os.Args[2:], errChan, &wg, os.Args)

	err := <-errChan
	if nil == err {
		// up; now await the shutdown result
		err = <-errChan
	}

	wg.Wait() // wait for services to go Down()

	if nil != err {
		fmt.Fprintf(os.Stderr, "relayd: Daemon(): returned error: %v\n", err) // Can't use logger.*() as it's not currently "up"
		os.Exit(1)                                                            // Exit with non-success status that can be checked from scripts
	}
}

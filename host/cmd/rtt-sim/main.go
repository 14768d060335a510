package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"vrtt/core"
	"vrtt/sim"
)

func main() {
	backend := flag.String("backend", "", "Override the scenario backend (frc, sysclk)")
	trace := flag.Bool("trace", false, "Print every callback and dump the RTT timing ring")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: rtt-sim [-backend frc|sysclk] [-trace] scenario.yaml...")
		os.Exit(2)
	}

	if *trace {
		core.SetDebugWriter(func(s string) { fmt.Println(s) })
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	failed := 0
	for _, path := range flag.Args() {
		s, err := sim.LoadScenario(path)
		if err != nil {
			log.Fatalf("%s: %v", path, err)
		}
		if *backend != "" {
			s.Backend = sim.Backend(*backend)
		}

		core.ClearTimingRing()
		result, err := s.Run()
		if result != nil && *trace {
			for _, ev := range result.Events {
				fmt.Printf("  %12v  boot %d  counter %10d  %s\n", ev.At, ev.Boot, ev.Counter, ev.Name)
			}
			core.DumpTimingRing()
		}
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s (%s, %d boots, counter %d)\n", path, s.Name, result.Boots, result.Final.Counter)
	}

	if failed > 0 {
		log.Fatalf("%d of %d scenarios failed", failed, flag.NArg())
	}
}

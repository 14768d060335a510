package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-tty"

	"vrtt/core"
	"vrtt/host/client"
	"vrtt/host/serial"
)

var (
	device   = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud     = flag.Int("baud", serial.DefaultBaud, "Baud rate of the monitor UART")
	timeout  = flag.Duration("timeout", client.DefaultTimeout, "Request timeout")
	interval = flag.Duration("interval", 100*time.Millisecond, "Counter poll interval in watch mode")
)

func main() {
	flag.Parse()

	fmt.Println("RTT Monitor")
	fmt.Println("===========")
	fmt.Println()

	fmt.Printf("Connecting to %s at %d baud...\n", *device, *baud)
	c, err := client.Open(*device, *baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	c.Timeout = *timeout

	printDictionary(c.Dictionary())
	go printEvents(c)

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "quit" || parts[0] == "exit" || parts[0] == "q" {
			return
		}
		if err := run(c, parts[0], parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()
	case "dict":
		printDictionary(c.Dictionary())
	case "raw":
		raw := c.DictionaryRaw()
		fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), raw)
	case "counter":
		v, err := c.GetCounter()
		if err != nil {
			return err
		}
		fmt.Printf("counter = %d\n", v)
	case "set_counter":
		v, err := parseValue(args, 0)
		if err != nil {
			return err
		}
		return c.SetCounter(v)
	case "alarm":
		v, err := alarmValue(c, args)
		if err != nil {
			return err
		}
		if err := c.SetAlarm(v); err != nil {
			return err
		}
		fmt.Printf("alarm armed at %d\n", v)
	case "clear_alarm":
		return c.ClearAlarm()
	case "overflow":
		return c.SetOverflow()
	case "clear_overflow":
		return c.ClearOverflow()
	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(st)
	case "watch":
		return watch(c)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
	return nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help              - Show this help message")
	fmt.Println("  dict              - Print dictionary summary")
	fmt.Println("  raw               - Print raw dictionary JSON")
	fmt.Println("  counter           - Read the counter")
	fmt.Println("  set_counter N     - Set the counter to N")
	fmt.Println("  alarm N | +US     - Arm the alarm at N, or US microseconds from now")
	fmt.Println("  clear_alarm       - Disarm the alarm")
	fmt.Println("  overflow          - Report every counter wrap")
	fmt.Println("  clear_overflow    - Stop reporting wraps")
	fmt.Println("  status            - Print the RTT state")
	fmt.Println("  watch             - Poll the counter until a key is pressed")
	fmt.Println("  quit/exit/q       - Exit the program")
	fmt.Println()
}

func parseValue(args []string, i int) (uint32, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseUint(args[i], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", args[i], err)
	}
	return uint32(v), nil
}

// alarmValue accepts an absolute counter value or +delay
func alarmValue(c *client.Client, args []string) (uint32, error) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "+") {
		return parseValue(args, 0)
	}
	delay, err := parseValue([]string{args[0][1:]}, 0)
	if err != nil {
		return 0, err
	}
	now, err := c.GetCounter()
	if err != nil {
		return 0, err
	}
	return now + delay, nil
}

func printDictionary(d *client.Dictionary) {
	if d == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("\n=== Target Dictionary ===")
	fmt.Printf("Version: %s\n", d.Version)
	fmt.Printf("Build: %s\n", d.BuildVersions)

	fmt.Println("\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Printf("  %s = %s\n", k, d.Config[k])
	}
	fmt.Printf("\nCommands (%d):\n", len(d.Commands))
	printEntries(d.Commands)
	fmt.Printf("\nResponses (%d):\n", len(d.Responses))
	printEntries(d.Responses)
	fmt.Println("=========================")
	fmt.Println()
}

func printEntries(entries map[string]int) {
	sigs := make([]string, 0, len(entries))
	for sig := range entries {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return entries[sigs[i]] < entries[sigs[j]] })
	for _, sig := range sigs {
		fmt.Printf("  [%d] %s\n", entries[sig], sig)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printStatus(st core.Status) {
	fmt.Printf("counter          = %d\n", st.Counter)
	fmt.Printf("alarm            = %d (pending %v)\n", st.Alarm, st.AlarmPending)
	fmt.Printf("armed            = %v (active %d)\n", st.AlarmArmed, st.AlarmActive)
	fmt.Printf("overflow         = %v (armed %v)\n", st.OverflowEnabled, st.OverflowArmed)
	fmt.Printf("wakeup           = %v\n", st.Wakeup)
}

func printEvents(c *client.Client) {
	for ev := range c.Events() {
		switch ev.Kind {
		case client.EventAlarm:
			fmt.Printf("\n[event] alarm %d fired at counter %d\n> ", ev.Alarm, ev.Counter)
		case client.EventOverflow:
			fmt.Printf("\n[event] overflow #%d\n> ", ev.Count)
		}
	}
}

// watch prints the counter every interval until a key is pressed
func watch(c *client.Client) error {
	t, err := tty.Open()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer t.Close()

	stop := make(chan struct{})
	go func() {
		t.ReadRune()
		close(stop)
	}()

	fmt.Println("Watching the counter, press any key to stop")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var last uint32
	for {
		select {
		case <-stop:
			fmt.Println()
			return nil
		case <-ticker.C:
			v, err := c.GetCounter()
			if err != nil {
				return err
			}
			fmt.Printf("\rcounter = %10d  (+%d us)   ", v, v-last)
			last = v
		}
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"midiseq/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "dump":
		if len(os.Args) < 3 {
			usage()
			return
		}
		err = dumpPort(os.Args[2])
	case "note":
		if len(os.Args) < 3 {
			usage()
			return
		}
		err = sendNote(os.Args[2], os.Args[3:])
	case "poll":
		pollDevices()
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list             - List all MIDI ports")
	fmt.Println("  dump PORT        - Print decoded events from an input port")
	fmt.Println("  note PORT [NOTE] - Play a note on an output port")
	fmt.Println("  poll             - Poll for device changes")
}

func listPorts() error {
	fmt.Printf("(waiting up to %v...)\n", midi.DefaultScanTimeout)
	ports, err := midi.ListPorts(midi.DefaultScanTimeout)
	if err != nil {
		fmt.Println("\nTIMEOUT! The MIDI server is hung.")
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ports.In {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range ports.Out {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return nil
}

func dumpPort(name string) error {
	dev, err := midi.OpenPort(0, name, midi.ModeIn)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", name)
	dec := midi.NewDecoder(0, midi.DefaultCtlTable())
	buf := make([]byte, 1024)
	start := time.Now()
	for ctx.Err() == nil {
		pfds := dev.PollFD(unix.POLLIN)
		if pfds == nil {
			return nil
		}
		n, err := unix.Poll(pfds, 100)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			return err
		}
		if dev.Revents(pfds)&unix.POLLIN == 0 {
			continue
		}
		n, err = dev.Read(buf)
		if err != nil {
			return err
		}
		dec.Feed(buf[:n], func(ev midi.Event) {
			fmt.Printf("%8.3f  % x  %v\n", time.Since(start).Seconds(), midi.Bytes(ev), ev)
		})
	}
	return nil
}

func sendNote(name string, args []string) error {
	note := 60
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n > 127 {
			return fmt.Errorf("bad note %q", args[0])
		}
		note = n
	}
	dev, err := midi.OpenPort(0, name, midi.ModeOut)
	if err != nil {
		return err
	}
	defer dev.Close()

	fmt.Printf("Playing note %d on %s\n", note, name)
	if err := dev.Send(midi.Encode(midi.NoteOn(0, 0, uint8(note), 100))...); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return dev.Send(midi.Encode(midi.NoteOff(0, 0, uint8(note), 0))...)
}

func pollDevices() {
	fmt.Println("Polling for device changes every second...")
	fmt.Println("Connect/disconnect a device to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := midi.NewScanner()
	go s.Run(ctx)
	for ev := range s.Events() {
		dir := ""
		if ev.In {
			dir += "in"
		}
		if ev.Out {
			dir += "out"
		}
		fmt.Printf("[%s] %s %s (%s)\n", time.Now().Format("15:04:05"), ev.Name, ev.Type, dir)
	}
}

// sdbgprobe is a minimal smoke-test client for a debug agent: it connects,
// waits for the first "stopped" event, prints the top stack frame, and
// disconnects. It is not a REPL — driving breakpoints, stepping, and
// evaluation interactively is a front-end concern this module does not
// provide.
//
// Usage:
//
//	sdbgprobe <config.yaml>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ianremillard/scriptdbg/internal/sessioncfg"
	"github.com/ianremillard/scriptdbg/pkg/scriptdbg"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sdbgprobe <config.yaml>")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		log.Fatalf("sdbgprobe: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := sessioncfg.Load(configPath)
	if err != nil {
		return err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}

	opts := scriptdbg.DialOptions{RequestTimeout: timeout, DialTimeout: 5 * time.Second}

	localInfo := cfg.ProtocolInfo()
	if localInfo != nil {
		return runHost(cfg.Addr(), localInfo, opts)
	}
	return runBase(cfg.Addr(), opts)
}

func runBase(addr string, opts scriptdbg.DialOptions) error {
	s, err := scriptdbg.Dial(addr, opts)
	if err != nil {
		return err
	}
	defer s.Conn.Close()

	stopped := waitForStop(s)
	if stopped == nil {
		return fmt.Errorf("no stopped event arrived (connection closed or 30s elapsed)")
	}

	top, err := s.GetTopStack()
	if err != nil {
		return fmt.Errorf("get top stack: %w", err)
	}
	printFrame(stopped.Reason, top)
	return nil
}

func runHost(addr string, localInfo *scriptdbg.ProtocolInfo, opts scriptdbg.DialOptions) error {
	hs, err := scriptdbg.DialHost(addr, localInfo, opts)
	if err != nil {
		return err
	}
	defer hs.Conn.Close()

	hs.On(scriptdbg.EventLog, func(payload interface{}) {
		if ev, ok := payload.(scriptdbg.LogEvent); ok {
			log.Printf("sdbgprobe: [remote log] %s", ev.Message)
		}
	})

	stopped := waitForStop(hs.Session)
	if stopped == nil {
		return fmt.Errorf("no stopped event arrived (connection closed or 30s elapsed)")
	}

	top, err := hs.GetTopStack()
	if err != nil {
		return fmt.Errorf("get top stack: %w", err)
	}
	printFrame(stopped.Reason, top)
	return nil
}

func waitForStop(s *scriptdbg.Session) *scriptdbg.StoppedEvent {
	stopped := make(chan scriptdbg.StoppedEvent, 1)
	ended := make(chan struct{}, 1)
	s.On(scriptdbg.EventStopped, func(payload interface{}) {
		if ev, ok := payload.(scriptdbg.StoppedEvent); ok {
			select {
			case stopped <- ev:
			default:
			}
		}
	})
	s.On(scriptdbg.EventEnd, func(interface{}) {
		select {
		case ended <- struct{}{}:
		default:
		}
	})

	select {
	case ev := <-stopped:
		return &ev
	case <-ended:
		return nil
	case <-time.After(30 * time.Second):
		return nil
	}
}

func printFrame(reason string, top scriptdbg.StackFrame) {
	fmt.Printf("stopped (%s) at %s:%d (%s)\n", reason, top.FileName, top.LineNumber, top.Name)
}

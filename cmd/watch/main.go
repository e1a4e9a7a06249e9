package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"

	"npcsim.ai/internal/protocol"
)

// watch follows a running server's message stream and forwards stdin lines
// as INPUT frames.
func main() {
	var (
		url     = flag.String("url", "ws://127.0.0.1:8080/v1/observe", "observer ws url")
		asJSON  = flag.Bool("json", false, "print raw message json instead of display text")
		noInput = flag.Bool("no_input", false, "do not forward stdin as INPUT frames")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Error("dial", "url", *url, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	if !*noInput {
		go func() {
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				b, ok := inputFrame(sc.Text())
				if !ok {
					continue
				}
				writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, b)
				writeMu.Unlock()
				if err != nil {
					logger.Warn("send INPUT", "err", err)
					return
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := printFrame(os.Stdout, msg, *asJSON); err != nil {
			logger.Debug("skip frame", "err", err)
		}
	}
}

func inputFrame(line string) ([]byte, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	b, err := json.Marshal(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Text: line})
	return b, err == nil
}

func printFrame(w io.Writer, msg []byte, asJSON bool) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeMessages:
		var f protocol.MessagesFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			return err
		}
		for _, m := range f.Messages {
			if asJSON {
				b, _ := json.Marshal(m)
				fmt.Fprintln(w, string(b))
				continue
			}
			fmt.Fprintf(w, "[%d] %s\n", f.Tick, m.DisplayText())
		}
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		fmt.Fprintf(w, "! %s: %s\n", e.Code, e.Message)
	default:
		return fmt.Errorf("unknown frame type %q", base.Type)
	}
	return nil
}

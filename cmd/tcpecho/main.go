// Command tcpecho drives the tcp package's full socket state machine
// end to end: "-listen" runs a loopback echo server, "-dial" connects to
// one and sends a single message, printing whatever comes back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/capnsock/tcp"
	"github.com/capnsock/tcp/internal/addrparse"
	"github.com/capnsock/tcp/internal/reactor"
	"go.uber.org/zap"
)

func printUsage() {
	fmt.Printf(`tcpecho - exercise the tcp package's socket state machine

USAGE:
   tcpecho -listen <ADDR>
   tcpecho -dial <ADDR> [-send <MESSAGE>]

OPTIONS:
   -listen <ADDR>
      Bind, listen, and echo back every connection's input.
      ADDR accepts a "?backlog=N" query option to override the
      default listen backlog.

   -dial <ADDR>
      Connect to ADDR, send -send, print the response

   -send <MESSAGE>
      Message to write after connecting (default "ping")

   -debug
      Log Unknown-error debug traces to stderr

`)
}

func main() {
	var (
		listenAddr string
		dialAddr   string
		message    string
		debug      bool
	)
	flag.StringVar(&listenAddr, "listen", "", "address to bind and echo on")
	flag.StringVar(&dialAddr, "dial", "", "address to connect to")
	flag.StringVar(&message, "send", "ping", "message to send after connecting")
	flag.BoolVar(&debug, "debug", false, "log Unknown-error debug traces")
	flag.Usage = printUsage
	flag.Parse()

	if debug {
		logger, _ := zap.NewDevelopment()
		tcp.SetDebugLogger(logger)
	}

	if listenAddr == "" && dialAddr == "" {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rtr, err := reactor.New()
	if err != nil {
		log.Fatalf("reactor: %v", err)
	}
	defer rtr.Close()

	if listenAddr != "" {
		if err := runServer(ctx, rtr, listenAddr); err != nil {
			log.Fatalf("listen: %v", err)
		}
		return
	}

	if err := runClient(ctx, rtr, dialAddr, message); err != nil {
		log.Fatalf("dial: %v", err)
	}
}

func runServer(ctx context.Context, rtr *reactor.Reactor, raw string) error {
	parsed, err := addrparse.Parse(raw)
	if err != nil {
		return err
	}

	listener, err := tcp.CreateSocket(parsed.Family, tcp.AllowAllNetwork{}, rtr)
	if err != nil {
		return err
	}
	defer listener.Drop()

	if err := listener.StartBind(parsed.Address); err != nil {
		return fmt.Errorf("start_bind: %w", err)
	}
	if err := listener.FinishBind(); err != nil {
		return fmt.Errorf("finish_bind: %w", err)
	}

	backlog := addrparse.IntOption(parsed.Options, "backlog", int(listener.ListenBacklogSize()))
	if err := listener.SetListenBacklogSize(int32(backlog)); err != nil {
		return fmt.Errorf("set_listen_backlog_size: %w", err)
	}

	if err := listener.StartListen(); err != nil {
		return fmt.Errorf("start_listen: %w", err)
	}
	if err := listener.FinishListen(); err != nil {
		return fmt.Errorf("finish_listen: %w", err)
	}

	local, err := listener.LocalAddress()
	if err != nil {
		return err
	}
	log.Printf("listening on %s", local)

	for {
		if err := listener.Subscribe().Ready(ctx); err != nil {
			return err
		}
		child, reader, writer, err := listener.Accept()
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return err
		}
		go echo(ctx, child, reader, writer)
	}
}

func echo(ctx context.Context, conn *tcp.SocketResource, reader *tcp.Reader, writer *tcp.Writer) {
	defer conn.Drop()
	defer reader.Close()
	defer writer.Close()

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(ctx, buf)
		if err != nil {
			return
		}
		if _, err := writer.Write(ctx, buf[:n]); err != nil {
			return
		}
	}
}

func runClient(ctx context.Context, rtr *reactor.Reactor, raw, message string) error {
	parsed, err := addrparse.Parse(raw)
	if err != nil {
		return err
	}

	client, err := tcp.CreateSocket(parsed.Family, tcp.AllowAllNetwork{}, rtr)
	if err != nil {
		return err
	}
	defer client.Drop()

	if err := client.StartConnect(parsed.Address); err != nil {
		return fmt.Errorf("start_connect: %w", err)
	}
	if err := client.Subscribe().Ready(ctx); err != nil {
		return err
	}
	reader, writer, err := client.FinishConnect()
	if err != nil {
		return fmt.Errorf("finish_connect: %w", err)
	}
	defer reader.Close()
	defer writer.Close()

	if _, err := writer.Write(ctx, []byte(message)); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	n, err := reader.Read(ctx, buf)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", buf[:n])
	return nil
}

func isRetryable(err error) bool {
	var e *tcp.Error
	return errors.As(err, &e) && e.Code == tcp.WouldBlock
}

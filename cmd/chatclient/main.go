// Command chatclient is a minimal terminal client: it reads command lines
// from stdin, maps them to wire.Messages or local actions, and prints every
// server-originated notification it observes.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/chatcore/chatserver/internal/client"
	"github.com/chatcore/chatserver/internal/wire"
)

func main() {
	addr := flag.String("connect", "", "host:port to connect to at startup")
	flag.Parse()

	runner := client.NewRunner()
	var conn net.Conn

	if *addr != "" {
		c, err := net.Dial("tcp", *addr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "connect failed:", err)
			os.Exit(1)
		}
		conn = c
		go readLoop(conn, runner)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		parsed, err := client.ParseCommand(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}

		switch parsed.Local {
		case client.LocalHelp:
			printHelp()
			continue
		case client.LocalQuit, client.LocalDisconnect:
			if conn != nil {
				conn.Close()
			}
			if parsed.Local == client.LocalQuit {
				return
			}
			conn = nil
			continue
		case client.LocalConnect:
			if conn != nil {
				conn.Close()
			}
			c, err := net.Dial("tcp", parsed.Target)
			if err != nil {
				fmt.Println("connect failed:", err)
				continue
			}
			conn = c
			go readLoop(conn, runner)
			continue
		}

		if parsed.Message == nil {
			continue
		}
		if conn == nil {
			fmt.Println("error: not connected, use /connect host:port")
			continue
		}
		if n, blocked := runner.CheckOutgoing(*parsed.Message); blocked {
			fmt.Printf("[%s] %s\n", n.Category, n.Text)
			continue
		}
		if err := wire.WriteFrame(conn, *parsed.Message); err != nil {
			fmt.Println("send failed:", err)
		}
	}
}

func readLoop(conn net.Conn, runner *client.Runner) {
	for {
		msg, err := wire.DecodeFrame(conn)
		if err != nil {
			fmt.Println("connection closed:", err)
			return
		}
		n := runner.Observe(msg)
		fmt.Printf("[%s] %s\n", n.Category, n.Text)
		if runner.TornDown() {
			conn.Close()
			return
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  /help                       show this text
  /name X                     register with nickname X
  /changename X               change nickname to X
  /connect host:port          connect to a server
  /list {users|rooms|allrooms}
  /join R                     join room R
  /leave R                    leave room R
  /create R                   create room R
  /sendto R msg...            send msg to room R
  /privmsg U msg...           send a private message to user U
  /disconnect                 close the current connection
  /quit                       exit the client`)
}

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"kvstore/client"
	"kvstore/internal/config"
	"kvstore/internal/utils"
)

func main() {
	host := flag.String("host", config.DefaultHost, "KVStore server host")
	port := flag.Int("port", config.DefaultPort, "KVStore server port")
	flag.Parse()

	c, err := client.Connect(client.WithHost(*host), client.WithPort(*port))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	fmt.Printf("Connected to %v:%d\n", *host, *port)
	fmt.Println("Type commands. 'exit' to quit.")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("input error:", err)
			return
		}

		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		words, err := utils.SplitCommandLine(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}

		cmd := strings.ToUpper(words[0])

		var resp string
		switch cmd {
		case "STATS":
			resp, err = c.Stats()
		default:
			resp, err = c.Execute(strings.Join(words, " "))
		}
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(resp)

		if cmd == "EXIT" || cmd == "SHUTDOWN" {
			return
		}
	}
}

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
	"github.com/Miloris/stock-exchange-simulation/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	investor := flag.Uint64("investor", 0, "Investor id (compulsory)")
	password := flag.String("password", "", "Investor password")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	// Order parameters
	ticker := flag.String("ticker", "AAPL", "Ticker symbol (max 8 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	tifStr := flag.String("tif", "day", "Time in force: 'day' or 'ioc'")
	price := flag.Float64("price", 100.0, "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Cancel parameters
	orderID := flag.Uint64("order", 0, "Order id to cancel")

	flag.Parse()

	if *investor == 0 {
		fmt.Println("Error: -investor is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as investor %d\n", *serverAddr, *investor)

	go readResponses(conn)

	seq := uint32(1)
	if err := wire.WriteFrame(conn, wire.Login{
		SeqNum:   seq,
		Investor: *investor,
		Password: *password,
	}); err != nil {
		log.Fatalf("Failed to send login: %v", err)
	}

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}
	kind := common.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		kind = common.MarketOrder
	}
	tif := common.Day
	if strings.ToLower(*tifStr) == "ioc" {
		tif = common.IOC
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			seq++
			err := wire.WriteFrame(conn, wire.NewOrder{
				SeqNum: seq,
				Ticker: *ticker,
				Side:   side,
				Kind:   kind,
				TIF:    tif,
				Size:   q,
				Price:  float32(*price),
			})
			if err != nil {
				log.Printf("Failed to place order (qty %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s %s %s: %s %d @ %.2f\n",
					strings.ToUpper(*sideStr), kind, tif, *ticker, q, *price)
			}
			// Give the server a moment between orders so reports interleave
			// readably.
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order is required for cancellation")
		}
		seq++
		if err := wire.WriteFrame(conn, wire.CancelOrder{SeqNum: seq, OrderID: *orderID}); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent cancel request for order %d\n", *orderID)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into a slice of uint32.
func parseQuantities(input string) []uint32 {
	var result []uint32
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 32); err == nil {
			result = append(result, uint32(val))
		} else {
			log.Printf("Warning: invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// readResponses continuously reads and prints server messages.
func readResponses(conn net.Conn) {
	for {
		msg, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		switch m := msg.(type) {
		case wire.LoginAck:
			fmt.Printf("\n[LOGIN OK]\n")
		case wire.LoginRej:
			fmt.Printf("\n[LOGIN REJECTED] %s\n", m.Reason)
		case wire.OrderAck:
			fmt.Printf("\n[ACCEPTED] order %d\n", m.OrderID)
		case wire.OrderRej:
			fmt.Printf("\n[REJECTED] %s\n", m.Reason)
		case wire.OrderFill:
			fmt.Printf("\n[FILL] order %d | qty %d @ %.2f\n", m.OrderID, m.Size, m.Price)
		case wire.OrderDead:
			fmt.Printf("\n[DONE] order %d left the market\n", m.OrderID)
		case wire.CancelRej:
			fmt.Printf("\n[CANCEL REJECTED] %s\n", m.Reason)
		default:
			fmt.Printf("\n[?] unexpected message type %d\n", msg.Type())
		}
	}
}

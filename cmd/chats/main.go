package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/abarbosa/fintalk/chat"
	"github.com/abarbosa/fintalk/store"
)

// Prints a user's unified conversation list and keeps it current,
// useful for eyeballing the aggregator against live data.
func main() {
	emailPtr := flag.String("email", "", "account email to aggregate conversations for")
	flag.Parse()

	if *emailPtr == "" {
		log.Fatalf("Please provide an account email using the -email flag")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := store.NewFirestore(ctx)
	if err != nil {
		log.Fatalf("connecting to firestore: %v", err)
	}
	defer st.Close()

	agg := chat.NewAggregator(st, *emailPtr)
	if err := agg.Start(ctx); err != nil {
		log.Fatalf("starting aggregator: %v", err)
	}
	defer agg.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-agg.Updates():
			render(agg.Snapshot())
		}
	}
}

func render(conversations []chat.Conversation) {
	now := time.Now()
	fmt.Printf("---- %s ----\n", now.Format(time.RFC1123))
	for _, conv := range conversations {
		when := ""
		if conv.LastMessage != nil {
			when = chat.FormatMessageTime(conv.LastMessage.SentAt, now)
		}
		fmt.Printf("[%-9s] %-24s %-40s %s\n", conv.Kind, conv.Name, conv.Preview, when)
	}
}

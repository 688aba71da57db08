package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/miradorstack/mirador-latency/internal/repo"
)

var messageTypes = []string{
	"https://didcomm.org/basicmessage/2.0/message",
	"https://didcomm.org/routing/2.0/forward",
	"https://didcomm.org/messagepickup/3.0/messages-received",
}

func main() {
	out := flag.String("out", "database.sqlite", "Path of the sqlite event log to write")
	alias := flag.String("alias", repo.DefaultHubAlias, "Alias of the hub identifier")
	hubDID := flag.String("hub-did", "did:peer:mediator", "Hub identifier")
	peerDID := flag.String("peer-did", "did:peer:alice", "Counterpart identifier")
	count := flag.Int("count", 20, "Number of messages")
	start := flag.String("start", "", "Save date of the first message, RFC3339 (default: now minus count*interval)")
	interval := flag.Duration("interval", 2*time.Second, "Gap between messages")
	flag.Parse()

	logger := log.New(log.Writer(), "seed-eventlog ", log.LstdFlags|log.Lmicroseconds)

	first := time.Now().UTC().Add(-time.Duration(*count) * *interval)
	if *start != "" {
		parsed, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			logger.Fatalf("invalid -start: %v", err)
		}
		first = parsed.UTC()
	}

	messages := make([]repo.SeedMessage, 0, *count)
	for i := 0; i < *count; i++ {
		at := first.Add(time.Duration(i) * *interval)
		msgType := messageTypes[i%len(messageTypes)]
		from, to := *peerDID, *hubDID
		if i%len(messageTypes) != 0 {
			from, to = *hubDID, *peerDID
		}
		// The hub filter keeps only messages addressed to the hub; half the replies also
		// land there so the direction inversion gets exercised.
		if i%2 == 0 {
			to = *hubDID
		}
		messages = append(messages, repo.SeedMessage{
			ID:        ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
			Type:      msgType,
			SaveDate:  at.Format("2006-01-02T15:04:05.000Z"),
			CreatedAt: at.Add(-50 * time.Millisecond).Format("2006-01-02 15:04:05.000"),
			From:      from,
			To:        to,
		})
	}

	if err := repo.SeedSQLite(context.Background(), *out, *alias, *hubDID, messages); err != nil {
		logger.Fatalf("seed %s: %v", *out, err)
	}
	logger.Printf("wrote %d messages to %s (hub %s=%s)", len(messages), *out, *alias, *hubDID)
}

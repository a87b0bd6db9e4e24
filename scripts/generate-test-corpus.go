//go:build ignore

// Package main generates a synthetic ChatGPT export for benchmarking
// indexing and search.
// Usage: go run scripts/generate-test-corpus.go -conversations 2000 -output testdata/bench
//
// The output directory receives conversations.json and, with -zip, an
// export.zip suitable for `chatlens import`. Every conversation has a
// linear active branch plus occasional abandoned regenerations, like a
// real export.
package main

import (
	"archive/zip"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numConversations = flag.Int("conversations", 1000, "Number of conversations to generate")
	maxTurns         = flag.Int("turns", 12, "Maximum user/assistant turns per conversation")
	outputDir        = flag.String("output", "testdata/bench", "Output directory")
	writeZip         = flag.Bool("zip", false, "Also write export.zip")
	seed             = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []struct {
	title     string
	questions []string
	answers   []string
}{
	{
		title: "Trip to %s",
		questions: []string{
			"What should I see in %s in three days?",
			"Cheapest way to get from the airport to central %s?",
			"Is %s walkable in %s?",
		},
		answers: []string{
			"For three days in %s, split the time between the old town and the museums.",
			"Take the express train; a taxi to %s costs about three times as much.",
			"Yes, most of %s is walkable, though %s can be hot.",
		},
	},
	{
		title: "%s recipe",
		questions: []string{
			"How do I make %s without a stand mixer?",
			"Can I substitute %s in this recipe?",
			"How long does %s keep in the fridge?",
		},
		answers: []string{
			"You can knead %s by hand for about ten minutes until smooth.",
			"Yes, %s works, but reduce the liquid slightly.",
			"Stored airtight, %s keeps for three to four days.",
		},
	},
	{
		title: "Debugging %s",
		questions: []string{
			"Why does %s return a 502 behind nginx?",
			"How do I profile memory usage in %s?",
			"%s crashes on startup after the upgrade, where do I start?",
		},
		answers: []string{
			"A 502 from %s usually means the upstream closed the connection; check timeouts.",
			"Enable the built-in profiler in %s and compare heap snapshots.",
			"Start with the %s logs from the first failing start and diff the config.",
		},
	},
}

var words = map[int][]string{
	0: {"Tokyo", "Lisbon", "Oaxaca", "Reykjavik", "Hanoi", "Montreal", "Kyoto", "Seville"},
	1: {"sourdough", "miso soup", "pad thai", "focaccia", "ramen", "shakshuka", "gnocchi"},
	2: {"Kubernetes ingress", "the Go service", "Postgres", "the Rails app", "Redis", "Kafka consumer"},
}

var seasons = []string{"July", "December", "spring", "the rainy season"}

// The export format: a conversation is a tree of nodes keyed by id.
type exportConversation struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	CreateTime  float64               `json:"create_time"`
	UpdateTime  float64               `json:"update_time"`
	CurrentNode string                `json:"current_node"`
	Mapping     map[string]exportNode `json:"mapping"`
}

type exportNode struct {
	ID       string         `json:"id"`
	Message  *exportMessage `json:"message"`
	Parent   *string        `json:"parent"`
	Children []string       `json:"children"`
}

type exportMessage struct {
	ID         string        `json:"id"`
	Author     exportAuthor  `json:"author"`
	CreateTime float64       `json:"create_time"`
	Content    exportContent `json:"content"`
}

type exportAuthor struct {
	Role string `json:"role"`
}

type exportContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	convs := make([]exportConversation, 0, *numConversations)
	messages := 0
	for i := range *numConversations {
		conv, n := generateConversation(rng, i)
		convs = append(convs, conv)
		messages += n
	}

	data, err := json.Marshal(convs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode conversations: %v\n", err)
		os.Exit(1)
	}

	jsonPath := filepath.Join(*outputDir, "conversations.json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", jsonPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d conversations (%d messages, %.1f MB) to %s\n",
		len(convs), messages, float64(len(data))/(1<<20), jsonPath)

	if *writeZip {
		zipPath := filepath.Join(*outputDir, "export.zip")
		if err := writeArchive(zipPath, data); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", zipPath, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", zipPath)
	}
}

// generateConversation builds conversation i and returns it with the
// number of messages on its active branch.
func generateConversation(rng *rand.Rand, i int) (exportConversation, int) {
	kind := rng.Intn(len(topics))
	topic := topics[kind]
	subject := words[kind][rng.Intn(len(words[kind]))]
	created := 1_600_000_000 + float64(i)*3600 + rng.Float64()

	conv := exportConversation{
		ID:         fmt.Sprintf("conv-%06d", i),
		Title:      fmt.Sprintf(topic.title, subject),
		CreateTime: created,
		Mapping:    make(map[string]exportNode),
	}

	rootID := conv.ID + "-root"
	conv.Mapping[rootID] = exportNode{ID: rootID}
	parent := rootID

	turns := 1 + rng.Intn(*maxTurns)
	messages := 0
	ts := created
	for turn := range turns {
		q := rng.Intn(len(topic.questions))
		ts += 30 + rng.Float64()*300
		parent = addMessage(conv.Mapping, parent, fmt.Sprintf("%s-u%d", conv.ID, turn), "user", ts,
			fill(topic.questions[q], subject, seasons[rng.Intn(len(seasons))]))

		// An abandoned regeneration stays in the tree off the active branch.
		if rng.Intn(5) == 0 {
			addMessage(conv.Mapping, parent, fmt.Sprintf("%s-a%d-old", conv.ID, turn), "assistant", ts+1,
				"(regenerated) "+fill(topic.answers[q], subject, "winter"))
		}

		ts += 5 + rng.Float64()*20
		parent = addMessage(conv.Mapping, parent, fmt.Sprintf("%s-a%d", conv.ID, turn), "assistant", ts,
			fill(topic.answers[q], subject, seasons[rng.Intn(len(seasons))]))
		messages += 2
	}

	conv.CurrentNode = parent
	conv.UpdateTime = ts
	return conv, messages
}

// addMessage appends a message node under parent and returns its id.
func addMessage(mapping map[string]exportNode, parent, id, role string, ts float64, text string) string {
	p := parent
	mapping[id] = exportNode{
		ID:     id,
		Parent: &p,
		Message: &exportMessage{
			ID:         id,
			Author:     exportAuthor{Role: role},
			CreateTime: ts,
			Content:    exportContent{ContentType: "text", Parts: []string{text}},
		},
	}
	node := mapping[parent]
	node.Children = append(node.Children, id)
	mapping[parent] = node
	return id
}

// fill substitutes up to two %s verbs, ignoring extra arguments.
func fill(format string, args ...string) string {
	n := strings.Count(format, "%s")
	vals := make([]any, n)
	for i := range n {
		vals[i] = args[min(i, len(args)-1)]
	}
	return fmt.Sprintf(format, vals...)
}

func writeArchive(path string, conversations []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("conversations.json")
	if err == nil {
		_, err = w.Write(conversations)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

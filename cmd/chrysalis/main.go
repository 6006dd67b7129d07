package main

import (
	"fmt"
	"log"
	"os"

	"github.com/replicant-partners/chrysalis/internal/storage"
	"github.com/replicant-partners/chrysalis/pkg/rdf"
	"github.com/replicant-partners/chrysalis/pkg/temporal"
)

const defaultDataDir = "./chrysalis_data"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chrysalis <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  demo                     - Run a demo with sample data")
		fmt.Println("  load <file.nt> <agent>   - Snapshot an N-Triples file for an agent")
		fmt.Println("  history <agent>          - Show an agent's version history")
		fmt.Println("  agents                   - List known agents")
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "demo":
		runDemo()
	case "load":
		if len(os.Args) < 4 {
			fmt.Println("Usage: chrysalis load <file.nt> <agent>")
			os.Exit(1)
		}
		runLoad(os.Args[2], os.Args[3])
	case "history":
		if len(os.Args) < 3 {
			fmt.Println("Usage: chrysalis history <agent>")
			os.Exit(1)
		}
		runHistory(os.Args[2])
	case "agents":
		runAgents()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func openStore() (*temporal.Store, *storage.BadgerStorage) {
	badgerStorage, err := storage.NewBadgerStorage(defaultDataDir)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	store, err := temporal.LoadStore(badgerStorage)
	if err != nil {
		badgerStorage.Close()
		log.Fatalf("Failed to load store: %v", err)
	}

	return store, badgerStorage
}

func saveAndClose(store *temporal.Store, badgerStorage *storage.BadgerStorage) {
	if err := store.SaveTo(badgerStorage); err != nil {
		badgerStorage.Close()
		log.Fatalf("Failed to save store: %v", err)
	}
	if err := badgerStorage.Close(); err != nil {
		log.Fatalf("Failed to close storage: %v", err)
	}
}

func runDemo() {
	fmt.Println("=== Chrysalis Temporal Quad Store Demo ===")
	fmt.Println()

	store := temporal.NewStore()

	unsubscribe := store.Subscribe(func(event temporal.Event) {
		fmt.Printf("  event: %s agent=%s\n", event.Kind, event.AgentID)
	})
	defer unsubscribe()

	agent := rdf.NewNamedNode("http://example.org/agents/alpha")
	tool := rdf.NewNamedNode("http://example.org/tools/search")

	fmt.Println("Inserting snapshot v1 for agent-alpha...")
	quads := []*rdf.Quad{
		mustTriple(agent, temporal.PredicateName, rdf.NewLiteral("Alpha")),
		mustTriple(tool, temporal.PredicateToolName, rdf.NewLiteral("search")),
		mustTriple(agent, rdf.RDFType, rdf.NewNamedNode("http://example.org/proto#MCPProtocolBinding")),
	}
	if _, err := store.CreateSnapshot("agent-alpha", quads, nil); err != nil {
		log.Fatalf("Failed to create snapshot: %v", err)
	}

	fmt.Println("Inserting snapshot v2 with a renamed agent...")
	quads = []*rdf.Quad{
		mustTriple(agent, temporal.PredicateName, rdf.NewLiteral("Alpha Prime")),
		mustTriple(tool, temporal.PredicateToolName, rdf.NewLiteral("search")),
	}
	if _, err := store.CreateSnapshot("agent-alpha", quads, nil); err != nil {
		log.Fatalf("Failed to create snapshot: %v", err)
	}

	fmt.Println()
	fmt.Println("History:")
	for _, snapshot := range store.GetAgentHistory("agent-alpha") {
		printSnapshot(snapshot)
	}

	fmt.Println()
	fmt.Println("Discovery:")
	for _, summary := range store.DiscoverAgents(nil) {
		fmt.Printf("  %s name=%q v%d capabilities=%v protocols=%v\n",
			summary.AgentID, summary.Name, summary.LatestVersion, summary.Capabilities, summary.Protocols)
	}

	fmt.Println()
	fmt.Println("Pattern query (?s name ?o):")
	solutions, err := store.Select([]*temporal.Pattern{
		temporal.NewPattern(temporal.Var("s"), temporal.Exact(temporal.PredicateName), temporal.Var("o")),
	}, nil)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, binding := range solutions.Bindings {
		fmt.Printf("  s=%s o=%s\n", binding["s"], binding["o"])
	}

	stats := store.GetStats()
	fmt.Println()
	fmt.Printf("Stats: %d graphs, %d quads, %d agents\n", stats.GraphCount, stats.QuadCount, stats.AgentCount)
}

func runLoad(path, agentID string) {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()

	quads, err := rdf.ParseNTriples(file)
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", path, err)
	}

	store, badgerStorage := openStore()
	snapshot, err := store.CreateSnapshot(agentID, quads, nil)
	if err != nil {
		badgerStorage.Close()
		log.Fatalf("Failed to create snapshot: %v", err)
	}
	saveAndClose(store, badgerStorage)

	fmt.Printf("Created %s version %d with %d quads\n", snapshot.GraphURI, snapshot.Version, len(snapshot.Quads))
}

func runHistory(agentID string) {
	store, badgerStorage := openStore()
	defer badgerStorage.Close()

	history := store.GetAgentHistory(agentID)
	if history == nil {
		fmt.Printf("Unknown agent: %s\n", agentID)
		os.Exit(1)
	}
	for _, snapshot := range history {
		printSnapshot(snapshot)
	}
}

func runAgents() {
	store, badgerStorage := openStore()
	defer badgerStorage.Close()

	for _, summary := range store.ListAgents(0, 0) {
		fmt.Printf("%s name=%q v%d\n", summary.AgentID, summary.Name, summary.LatestVersion)
	}
}

func printSnapshot(snapshot *temporal.Snapshot) {
	validTo := "open"
	if !snapshot.IsOpen() {
		validTo = snapshot.ValidTo.Format("2006-01-02T15:04:05Z07:00")
	}
	fmt.Printf("  v%d %s valid=[%s, %s) quads=%d\n",
		snapshot.Version, snapshot.GraphURI,
		snapshot.ValidFrom.Format("2006-01-02T15:04:05Z07:00"), validTo, len(snapshot.Quads))
}

func mustTriple(subject, predicate, object rdf.Term) *rdf.Quad {
	quad, err := rdf.NewTriple(subject, predicate, object)
	if err != nil {
		log.Fatalf("Invalid triple: %v", err)
	}
	return quad
}

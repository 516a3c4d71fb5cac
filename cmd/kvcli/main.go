// kvcli is an interactive REPL for a strata store.
//
// Usage:
//
//	kvcli --data-dir <dir> [--segment-size bytes] [--fsync-policy always|batch|never]
//
// Commands (in REPL):
//
//	set <key> <value>   Store a key/value pair
//	get <key>           Retrieve a value
//	delete <key>        Remove a key
//	list                List all live keys
//	compact             Run offline compaction
//	stats               Show store statistics
//	help                Show this help
//	quit / exit         Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	kverrors "github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/kvstore"
	"github.com/arvindnair/strata/pkg/options"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.StringP("data-dir", "d", "", "store directory (required)")
	segmentSize := flag.Int64P("segment-size", "s", options.DefaultSegmentSize, "segment size limit in bytes")
	fsyncPolicy := flag.StringP("fsync-policy", "f", string(options.DefaultFsyncPolicy), "fsync policy: always, batch, never")
	flag.Parse()

	if strings.TrimSpace(*dataDir) == "" {
		flag.Usage()
		return errors.New("missing --data-dir")
	}

	ctx := context.Background()
	store, err := kvstore.Open(ctx, "kvcli",
		options.WithDataDir(*dataDir),
		options.WithSegmentSize(*segmentSize),
		options.WithFsyncPolicy(options.FsyncPolicy(*fsyncPolicy)),
	)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close(ctx)

	repl := &REPL{ctx: ctx, store: store}
	return repl.Run()
}

// REPL is the interactive command loop over a kvstore.Store.
type REPL struct {
	ctx   context.Context
	store *kvstore.Store
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kvcli_history")
}

// Run starts the REPL loop. Per-command errors are printed and the loop
// continues; only EOF/interrupt terminates it (spec §7 "does not terminate
// the process on a per-command error").
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("kvcli - strata store REPL")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("kvcli> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "quit", "exit":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "set":
			r.cmdSet(args)
		case "get":
			r.cmdGet(args)
		case "delete", "del":
			r.cmdDelete(args)
		case "list":
			r.cmdList()
		case "compact":
			r.cmdCompact()
		case "stats":
			r.cmdStats()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"set", "get", "delete", "del", "list", "compact", "stats", "help", "quit", "exit"}
	var out []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			out = append(out, cmd)
		}
	}
	return out
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  set <key> <value>   Store a key/value pair")
	fmt.Println("  get <key>           Retrieve a value")
	fmt.Println("  delete <key>        Remove a key (no-op if absent)")
	fmt.Println("  list                List all live keys")
	fmt.Println("  compact             Run offline compaction")
	fmt.Println("  stats               Show store statistics")
	fmt.Println("  help                Show this help")
	fmt.Println("  quit / exit         Exit")
}

func (r *REPL) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: set <key> <value>")
		return
	}
	key := args[0]
	value := strings.Join(args[1:], " ")
	if err := r.store.Set(r.ctx, key, []byte(value)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: set %q\n", key)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: get <key>")
		return
	}
	value, err := r.store.Get(r.ctx, args[0])
	if err != nil {
		if errors.Is(err, kverrors.ErrKeyNotFound) {
			fmt.Println("(not found)")
			return
		}
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(value))
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: delete <key>")
		return
	}
	if err := r.store.Delete(r.ctx, args[0]); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: deleted %q\n", args[0])
}

func (r *REPL) cmdList() {
	keys, err := r.store.ListKeys(r.ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(keys) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, k := range keys {
		fmt.Println(k)
	}
}

func (r *REPL) cmdCompact() {
	if err := r.store.Compact(r.ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK: compaction complete")
}

func (r *REPL) cmdStats() {
	stats, err := r.store.Stats(r.ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(stats.String())
}

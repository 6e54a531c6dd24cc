package main

import (
	"charity-chat/infrastructure/storage"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// inspect dumps a slice of the chat keyspace, e.g. -prefix msg:{chat_id}: for a conversation.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "chat:", "Prefix to scan (identity:, chat:, pair:, member:, msg:, msgkey:)")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	serve := flag.Int("serve", 0, "Serve the web inspector on this port instead of printing")
	flag.Parse()

	var err error
	if *serve > 0 {
		err = viewer(*dbPath, *serve)
	} else {
		err = run(*dbPath, *prefix, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

// viewer serves the read-only store on the sdk inspector page until interrupted.
// The lock guard is bypassed so a running server keeps its database.
func viewer(dbPath string, port int) error {
	db, err := storage.OpenReadOnly(dbPath)
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Viewer started at http://localhost:%d/inspect?prefix=chat:\n", port)
	database.StartDebugServer(db, port, "/inspect", storage.InspectMapper)
	<-ctx.Done()
	return nil
}

func run(dbPath, prefix string, limit int) error {
	db, err := storage.OpenReadOnly(dbPath)
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && rows < limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				row := storage.InspectMapper(key, v)
				table.Append([]string{key, row.Type, row.Detail})
				return nil
			})
			if err != nil {
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	fmt.Printf("%d row(s)\n", rows)
	return nil
}

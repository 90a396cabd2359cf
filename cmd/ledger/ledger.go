// Package ledger implements the manual override commands for the discovery
// ledger: listing entries and forcing or removing individual records.
package ledger

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/ledger"
)

// Command creates the ledger command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and override ledger entries",
	}

	cmd.AddCommand(
		listCommand(settings),
		forceCommand(settings, "good", ledger.StatusGood,
			"Force an entry to confirmed good"),
		forceCommand(settings, "bad", ledger.StatusBad,
			"Force an entry to confirmed bad"),
		forceCommand(settings, "pending", ledger.StatusYet,
			"Return an entry to pending"),
		removeCommand(settings),
	)
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openBook(cmd, settings)
			if err != nil {
				return err
			}
			doc := book.Snapshot()
			keys := make([]string, 0, len(doc))
			for key := range doc {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				entry := doc[key]
				if entry.ItemID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s (item %s)\n", entry.Status, key, entry.ItemID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", entry.Status, key)
				}
			}
			return nil
		},
	}
}

func forceCommand(settings *conf.Settings, verb string, status ledger.Status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name> <number>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openBook(cmd, settings)
			if err != nil {
				return err
			}
			key, err := resolveEntry(cmd, book, args[0], args[1])
			if err != nil {
				return err
			}
			book.SetStatus(key, status)
			if err := book.Persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", key, status)
			return nil
		},
	}
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name> <number>",
		Short: "Remove an entry from the ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openBook(cmd, settings)
			if err != nil {
				return err
			}
			key, err := resolveEntry(cmd, book, args[0], args[1])
			if err != nil {
				return err
			}
			book.Remove(key)
			if err := book.Persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
			return nil
		},
	}
}

func openBook(cmd *cobra.Command, settings *conf.Settings) (*ledger.Book, error) {
	store, err := ledger.OpenStore(&settings.Ledger)
	if err != nil {
		return nil, err
	}
	book := ledger.NewBook(store)
	if err := book.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return book, nil
}

// resolveEntry finds the entry for a name and number. Multiple matches are
// disambiguated interactively by index.
func resolveEntry(cmd *cobra.Command, book *ledger.Book, name, number string) (string, error) {
	matches := book.Search(name, number)
	switch len(matches) {
	case 0:
		return "", errors.Newf("no ledger entry matches %s %s", name, number).
			Component("ledger-cmd").
			Category(errors.CategoryNotFound).
			Build()
	case 1:
		return matches[0], nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d entries match %s %s:\n", len(matches), name, number)
	for i, key := range matches {
		entry, _ := book.Get(key)
		fmt.Fprintf(out, "  [%d] %-8s %s\n", i, entry.Status, key)
	}
	fmt.Fprint(out, "select index: ")

	index, err := readIndex(cmd.InOrStdin(), len(matches))
	if err != nil {
		return "", err
	}
	return matches[index], nil
}

func readIndex(in io.Reader, n int) (int, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return 0, errors.New(err).
			Component("ledger-cmd").
			Category(errors.CategoryValidation).
			Build()
	}
	index, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || index < 0 || index >= n {
		return 0, errors.Newf("invalid selection %q", strings.TrimSpace(line)).
			Component("ledger-cmd").
			Category(errors.CategoryValidation).
			Build()
	}
	return index, nil
}

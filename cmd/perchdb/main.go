// Command perchdb is a small inspection tool over a perchdb database file:
// point operations and range scans against a named index, plus a structural
// integrity check.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"perchdb"
	"perchdb/logger"
)

var (
	dbPath    string
	indexName string
	verbose   bool
)

func openDB() (*perchdb.DB, *perchdb.BTree, error) {
	opts := []perchdb.Option{}
	if verbose {
		l := logrus.New()
		l.SetLevel(logrus.InfoLevel)
		opts = append(opts, perchdb.WithLogger(logger.NewLogrus(l)))
	}
	db, err := perchdb.Open(dbPath, opts...)
	if err != nil {
		return nil, nil, err
	}
	tree, err := db.OpenIndex(indexName)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, tree, nil
}

func parseKey(arg string) (perchdb.Key, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	return perchdb.Key(v), err
}

func main() {
	root := &cobra.Command{
		Use:           "perchdb",
		Short:         "inspect and edit a perchdb index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "perch.db", "database file")
	root.PersistentFlags().StringVar(&indexName, "index", "default", "index name")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log internals")

	root.AddCommand(
		&cobra.Command{
			Use:   "put <key> <page> <slot>",
			Short: "insert a key → record-id entry",
			Args:  cobra.ExactArgs(3),
			RunE: func(_ *cobra.Command, args []string) error {
				key, err := parseKey(args[0])
				if err != nil {
					return err
				}
				page, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return err
				}
				slot, err := strconv.ParseUint(args[2], 10, 32)
				if err != nil {
					return err
				}
				db, tree, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				txn := db.Transactions().Begin(perchdb.RepeatableRead)
				defer db.Transactions().Commit(txn)
				ok, err := tree.Insert(key, perchdb.RID{PageID: perchdb.PageID(page), Slot: uint32(slot)}, txn)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("key %d already present", key)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "look up a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				key, err := parseKey(args[0])
				if err != nil {
					return err
				}
				db, tree, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				rid, found := tree.GetValue(key, nil)
				if !found {
					return fmt.Errorf("key %d not found", key)
				}
				fmt.Printf("%d -> (%d, %d)\n", key, rid.PageID, rid.Slot)
				return nil
			},
		},
		&cobra.Command{
			Use:   "del <key>",
			Short: "remove a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				key, err := parseKey(args[0])
				if err != nil {
					return err
				}
				db, tree, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				txn := db.Transactions().Begin(perchdb.RepeatableRead)
				defer db.Transactions().Commit(txn)
				return tree.Remove(key, txn)
			},
		},
		&cobra.Command{
			Use:   "scan [start-key]",
			Short: "list entries in key order",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				db, tree, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				var it *perchdb.Iterator
				if len(args) == 1 {
					key, err := parseKey(args[0])
					if err != nil {
						return err
					}
					it, err = tree.BeginAt(key)
					if err != nil {
						return err
					}
				} else {
					it, err = tree.Begin()
					if err != nil {
						return err
					}
				}
				defer it.Close()
				for !it.IsEnd() {
					rid := it.Value()
					fmt.Printf("%d -> (%d, %d)\n", it.Key(), rid.PageID, rid.Slot)
					if err := it.Next(); err != nil {
						return err
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "verify the tree's structural invariants",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				db, tree, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				if err := tree.Check(); err != nil {
					return err
				}
				fmt.Println("ok")
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "perchdb:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/docfeed/internal/checkpoint"
	"github.com/kartikbazzad/docfeed/internal/config"
	"github.com/kartikbazzad/docfeed/internal/emulator"
	"github.com/kartikbazzad/docfeed/internal/pagination"
	"github.com/kartikbazzad/docfeed/pkg/client"
)

type drainFlags struct {
	items      int
	tenants    int
	splitEvery int
	query      string
	orderBy    string
	checkpoint string
	printIDs   bool
}

func newDrainCmd(a *app) *cobra.Command {
	var f drainFlags
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Seed an emulated container and drain it across partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDrain(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().IntVar(&f.items, "items", 1000, "number of items to seed")
	cmd.Flags().IntVar(&f.tenants, "tenants", 64, "number of distinct partition keys")
	cmd.Flags().IntVar(&f.splitEvery, "split-every", 0, "split a partition after every n pages (0 = never)")
	cmd.Flags().StringVar(&f.query, "query", "", `filter expression, e.g. "n gte 10"`)
	cmd.Flags().StringVar(&f.orderBy, "order-by", "", "merge pages by this item field (prefix - for descending)")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "", "save the continuation token under this name and resume from it")
	cmd.Flags().BoolVar(&f.printIDs, "ids", false, "print the id of every item")
	return cmd
}

// newEmulator creates an emulated container from config and seeds it.
func newEmulator(ctx context.Context, cfg *config.Config, log *slog.Logger, items, tenants int) (*emulator.Container, error) {
	opts := append(emulator.OptionsFromConfig(cfg.Emulator), emulator.WithLogger(log))
	em, err := emulator.New(opts...)
	if err != nil {
		return nil, err
	}
	if tenants < 1 {
		tenants = 1
	}
	path := strings.FieldsFunc(cfg.Emulator.PartitionKeyPath, func(r rune) bool { return r == '/' || r == '.' })
	for i := 0; i < items; i++ {
		doc := map[string]any{
			"id": fmt.Sprintf("item-%06d", i),
			"n":  i,
		}
		setPath(doc, path, fmt.Sprintf("tenant-%d", i%tenants))
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		if _, err := em.CreateItem(ctx, payload); err != nil {
			return nil, fmt.Errorf("seed item %d: %w", i, err)
		}
	}
	return em, nil
}

func setPath(doc map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	for _, part := range path[:len(path)-1] {
		next, ok := doc[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[part] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}

func (a *app) runDrain(ctx context.Context, out io.Writer, f drainFlags) error {
	em, err := newEmulator(ctx, a.cfg, a.log, f.items, f.tenants)
	if err != nil {
		return err
	}
	c, err := client.New(em, em, a.cfg, client.WithLogger(a.log))
	if err != nil {
		return err
	}

	var store *checkpoint.Store
	opts := client.FeedOptions{OrderBy: f.orderBy}
	if f.checkpoint != "" {
		store, err = checkpoint.Open(a.cfg.Checkpoint.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		token, ok, err := store.Load(ctx, f.checkpoint)
		if err != nil {
			return err
		}
		if ok {
			a.log.Info("resuming from checkpoint", "name", f.checkpoint)
			opts.ContinuationToken = token
		}
	}

	d := &drainer{em: em, store: store, out: out, flags: f, log: a.log}
	if f.query != "" {
		expr, err := emulator.ParseExpression(f.query)
		if err != nil {
			return err
		}
		it, err := c.Query(expr, opts)
		if err != nil {
			return err
		}
		defer it.Close()
		return drain(ctx, d, it)
	}
	it, err := c.ReadFeed(opts)
	if err != nil {
		return err
	}
	defer it.Close()
	return drain(ctx, d, it)
}

type drainer struct {
	em    *emulator.Container
	store *checkpoint.Store
	out   io.Writer
	flags drainFlags
	log   *slog.Logger

	pages  int
	items  int
	charge float64
	splits int
}

func drain[S pagination.State](ctx context.Context, d *drainer, it *client.FeedIterator[S]) error {
	err := it.Drain(ctx, func(resp client.FeedResponse) error {
		return d.page(ctx, resp)
	})
	if err != nil {
		return err
	}
	if d.store != nil {
		if err := d.store.Delete(ctx, d.flags.checkpoint); err != nil {
			d.log.Debug("no checkpoint to clear", "name", d.flags.checkpoint, "error", err)
		}
	}
	fmt.Fprintf(d.out, "pages=%d items=%d charge=%.2f splits=%d partitions=%d\n",
		d.pages, d.items, d.charge, d.splits, len(d.em.PartitionIDs()))
	return nil
}

func (d *drainer) page(ctx context.Context, resp client.FeedResponse) error {
	d.pages++
	d.items += len(resp.Items)
	d.charge += resp.RequestCharge
	if d.flags.printIDs {
		for _, raw := range resp.Items {
			var doc struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			fmt.Fprintln(d.out, doc.ID)
		}
	}
	if d.store != nil && resp.ContinuationToken != "" {
		if err := d.store.Save(ctx, d.flags.checkpoint, resp.ContinuationToken); err != nil {
			return err
		}
	}
	if d.flags.splitEvery > 0 && d.pages%d.flags.splitEvery == 0 {
		ids := d.em.PartitionIDs()
		target := ids[d.splits%len(ids)]
		if _, err := d.em.Split(ctx, target); err != nil {
			d.log.Warn("split failed", "partition", target, "error", err)
			return nil
		}
		d.splits++
	}
	return nil
}

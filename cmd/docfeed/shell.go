package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/docfeed/internal/checkpoint"
	"github.com/kartikbazzad/docfeed/internal/emulator"
	"github.com/kartikbazzad/docfeed/internal/pagination"
	"github.com/kartikbazzad/docfeed/pkg/client"
)

var shellCommands = []string{"next", "split", "merge", "partitions", "state", "save", "load", "reset", "help", "exit"}

const shellHelp = `commands:
  next [n]          read the next n pages (default 1)
  split <id>        split a partition
  merge <a> <b>     merge two adjacent partitions
  partitions        list live partitions
  state             print the continuation token
  save <name>       save the continuation token
  load <name>       resume from a saved token
  reset             start the feed over
  help              show this help
  exit              leave the shell
`

func newShellCmd(a *app) *cobra.Command {
	var items, tenants int
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Page through an emulated container interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			em, err := newEmulator(ctx, a.cfg, a.log, items, tenants)
			if err != nil {
				return err
			}
			c, err := client.New(em, em, a.cfg, client.WithLogger(a.log))
			if err != nil {
				return err
			}
			sh := &shell{em: em, client: c, out: cmd.OutOrStdout(), checkpointPath: a.cfg.Checkpoint.Path}
			defer sh.close()
			if err := sh.reset(""); err != nil {
				return err
			}
			return sh.run(ctx)
		},
	}
	cmd.Flags().IntVar(&items, "items", 100, "number of items to seed")
	cmd.Flags().IntVar(&tenants, "tenants", 16, "number of distinct partition keys")
	return cmd
}

type shell struct {
	em             *emulator.Container
	client         *client.Container
	out            io.Writer
	checkpointPath string

	it    *client.FeedIterator[*pagination.ReadFeedState]
	store *checkpoint.Store
}

func (s *shell) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		var out []string
		for _, c := range shellCommands {
			if strings.HasPrefix(c, strings.ToLower(l)) {
				out = append(out, c)
			}
		}
		return out
	})

	fmt.Fprint(s.out, "docfeed shell, type help for commands\n")
	for {
		input, err := line.Prompt("docfeed> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := s.exec(ctx, input)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one shell command. It reports true when the shell should exit.
func (s *shell) exec(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return false, nil
	case "next":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return false, fmt.Errorf("next: bad page count %q", args[0])
			}
			n = v
		}
		return false, s.next(ctx, n)
	case "split":
		if len(args) != 1 {
			return false, errors.New("usage: split <id>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("split: bad partition id %q", args[0])
		}
		kids, err := s.em.Split(ctx, id)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "partition %d split into %d and %d\n", id, kids[0], kids[1])
		return false, nil
	case "merge":
		if len(args) != 2 {
			return false, errors.New("usage: merge <a> <b>")
		}
		a, errA := strconv.Atoi(args[0])
		b, errB := strconv.Atoi(args[1])
		if errA != nil || errB != nil {
			return false, fmt.Errorf("merge: bad partition ids %q %q", args[0], args[1])
		}
		id, err := s.em.Merge(ctx, a, b)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "partitions %d and %d merged into %d\n", a, b, id)
		return false, nil
	case "partitions":
		for _, id := range s.em.PartitionIDs() {
			r, _ := s.em.PartitionRange(id)
			fmt.Fprintf(s.out, "  %-4d %s\n", id, r)
		}
		return false, nil
	case "state":
		token := s.it.ContinuationToken()
		if token == "" {
			token = "(none)"
		}
		fmt.Fprintln(s.out, token)
		return false, nil
	case "save":
		if len(args) != 1 {
			return false, errors.New("usage: save <name>")
		}
		return false, s.save(ctx, args[0])
	case "load":
		if len(args) != 1 {
			return false, errors.New("usage: load <name>")
		}
		return false, s.load(ctx, args[0])
	case "reset":
		return false, s.reset("")
	default:
		return false, fmt.Errorf("unknown command %q, type help", cmd)
	}
}

func (s *shell) next(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		resp, err := s.it.ReadNext(ctx)
		if errors.Is(err, client.ErrNoMoreResults) {
			fmt.Fprintln(s.out, "no more results")
			return nil
		}
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(resp.Items))
		for _, raw := range resp.Items {
			var doc struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			ids = append(ids, doc.ID)
		}
		fmt.Fprintf(s.out, "%s: %d item(s) %s\n", resp.FeedRange, len(ids), strings.Join(ids, " "))
	}
	return nil
}

func (s *shell) checkpoints() (*checkpoint.Store, error) {
	if s.store == nil {
		store, err := checkpoint.Open(s.checkpointPath)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s.store, nil
}

func (s *shell) save(ctx context.Context, name string) error {
	token := s.it.ContinuationToken()
	if token == "" {
		return errors.New("save: nothing to resume")
	}
	store, err := s.checkpoints()
	if err != nil {
		return err
	}
	if err := store.Save(ctx, name, token); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saved %s\n", name)
	return nil
}

func (s *shell) load(ctx context.Context, name string) error {
	store, err := s.checkpoints()
	if err != nil {
		return err
	}
	token, ok, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("load: no checkpoint named %q", name)
	}
	if err := s.reset(token); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "resumed from %s\n", name)
	return nil
}

// reset replaces the iterator with one starting at token.
func (s *shell) reset(token string) error {
	it, err := s.client.ReadFeed(client.FeedOptions{ContinuationToken: token})
	if err != nil {
		return err
	}
	if s.it != nil {
		_ = s.it.Close()
	}
	s.it = it
	return nil
}

func (s *shell) close() {
	if s.it != nil {
		_ = s.it.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

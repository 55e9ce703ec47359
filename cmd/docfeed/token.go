package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/docfeed/internal/pagination"
	"github.com/kartikbazzad/docfeed/pkg/client"
)

func newTokenCmd() *cobra.Command {
	var query bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Split, merge and inspect continuation tokens",
	}
	cmd.PersistentFlags().BoolVar(&query, "query", false, "tokens come from a query feed")

	var parts int
	split := &cobra.Command{
		Use:   "split <token>",
		Short: "Divide a token into tokens over disjoint ranges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tokens []string
				err    error
			)
			if query {
				tokens, err = client.SplitToken[*pagination.QueryState](args[0], parts)
			} else {
				tokens, err = client.SplitToken[*pagination.ReadFeedState](args[0], parts)
			}
			if err != nil {
				return err
			}
			for _, t := range tokens {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	split.Flags().IntVarP(&parts, "parts", "n", 2, "number of tokens to produce")

	merge := &cobra.Command{
		Use:   "merge <token>...",
		Short: "Join tokens into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				token string
				err   error
			)
			if query {
				token, err = client.MergeTokens[*pagination.QueryState](args...)
			} else {
				token, err = client.MergeTokens[*pagination.ReadFeedState](args...)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	inspect := &cobra.Command{
		Use:   "inspect <token>",
		Short: "List the ranges and positions held by a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if query {
				return inspectToken[*pagination.QueryState](cmd.OutOrStdout(), args[0])
			}
			return inspectToken[*pagination.ReadFeedState](cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(split, merge, inspect)
	return cmd
}

func inspectToken[S pagination.State](out io.Writer, token string) error {
	state, err := pagination.DecodeCrossFeedRangeState[S](token)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d range(s)\n", state.Len())
	for _, r := range state.Ranges() {
		position := "start"
		if !pagination.IsAbsent(r.State) {
			data, err := json.Marshal(r.State)
			if err != nil {
				return err
			}
			position = string(data)
		}
		fmt.Fprintf(out, "  %-40s %s\n", r.FeedRange.String(), position)
	}
	return nil
}

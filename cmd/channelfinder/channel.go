package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/channelfinder/internal/encoding"
	"github.com/liliang-cn/channelfinder/pkg/catalog"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage channels",
}

var channelGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Get a channel by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
			ch, err := cat.Channels.Read(ctx, args[0])
			if err != nil {
				return err
			}
			return printChannels(cmd, []core.Channel{ch})
		})
	},
}

var channelSearchCmd = &cobra.Command{
	Use:   "search [key=value ...]",
	Short: "Search channels",
	Long: `Search channels with query parameters. Each argument is key=value and keys may repeat.

  ~name=SR:*        channel name pattern
  ~tag=T1|T2        tag name pattern
  Loc=build*        property value pattern; append ! to the key to negate
  ~size=100 ~from=0 ~search_after=<cursor>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
			page, err := cat.Channels.QueryPage(ctx, params)
			if err != nil {
				return err
			}
			if err := printChannels(cmd, page.Channels); err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); !asJSON && page.Cursor != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Next page: ~search_after=%s\n", page.Cursor)
			}
			return nil
		})
	},
}

var channelPutCmd = &cobra.Command{
	Use:   "put [name]",
	Short: "Create or replace channels from a JSON payload",
	Long:  `Create or replace channels. With a name the payload holds one channel stored at that name; without one it holds a list.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chs, err := readChannels(cmd)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
			if len(args) == 1 {
				if len(chs) != 1 {
					return core.InvalidInputf("expected one channel for %q, got %d", args[0], len(chs))
				}
				ch, err := cat.Channels.Create(ctx, args[0], chs[0])
				if err != nil {
					return err
				}
				return printChannels(cmd, []core.Channel{ch})
			}
			out, err := cat.Channels.CreateAll(ctx, chs)
			if err != nil {
				return err
			}
			return printChannels(cmd, out)
		})
	},
}

var channelPostCmd = &cobra.Command{
	Use:   "post [name]",
	Short: "Merge channels from a JSON payload into the stored ones",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chs, err := readChannels(cmd)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
			if len(args) == 1 {
				if len(chs) != 1 {
					return core.InvalidInputf("expected one channel for %q, got %d", args[0], len(chs))
				}
				ch, err := cat.Channels.Update(ctx, args[0], chs[0])
				if err != nil {
					return err
				}
				return printChannels(cmd, []core.Channel{ch})
			}
			out, err := cat.Channels.UpdateAll(ctx, chs)
			if err != nil {
				return err
			}
			return printChannels(cmd, out)
		})
	},
}

var channelDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
			if err := cat.Channels.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Channel '%s' deleted successfully\n", args[0])
			return nil
		})
	},
}

func readChannels(cmd *cobra.Command) ([]core.Channel, error) {
	data, err := readPayload(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return encoding.DecodeList[core.Channel](data)
}

// parseParams turns key=value arguments into a multi-valued parameter map
func parseParams(args []string) (map[string][]string, error) {
	params := make(map[string][]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, core.InvalidInputf("search argument %q is not key=value", arg)
		}
		params[key] = append(params[key], value)
	}
	return params, nil
}

func printChannels(cmd *cobra.Command, chs []core.Channel) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), chs)
	}
	w := cmd.OutOrStdout()
	if len(chs) == 0 {
		fmt.Fprintln(w, "No channels found")
		return nil
	}
	for _, ch := range chs {
		fmt.Fprintf(w, "%s (owner: %s)\n", ch.Name, ch.Owner)
		for _, p := range ch.Properties {
			fmt.Fprintf(w, "  %s = %s (owner: %s)\n", p.Name, p.Value, p.Owner)
		}
		if len(ch.Tags) > 0 {
			fmt.Fprintf(w, "  tags: %s\n", strings.Join(ch.TagNames(), ", "))
		}
	}
	return nil
}

func init() {
	channelCmd.AddCommand(channelGetCmd, channelSearchCmd, channelPutCmd, channelPostCmd, channelDeleteCmd)

	for _, c := range []*cobra.Command{channelGetCmd, channelSearchCmd, channelPutCmd, channelPostCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
	for _, c := range []*cobra.Command{channelPutCmd, channelPostCmd} {
		c.Flags().StringP("file", "f", "-", "JSON payload file (- for stdin)")
	}
}

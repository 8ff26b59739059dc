package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/channelfinder/internal/encoding"
	"github.com/liliang-cn/channelfinder/pkg/catalog"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

// entry is the printable form of a tag or property
type entry struct {
	Name     string
	Owner    string
	Channels []core.Channel
	value    any
}

// vocabularyResource binds the shared tag/property commands to one manager
type vocabularyResource struct {
	name         string
	addArgs      string
	list         func(ctx context.Context, cat *catalog.Catalog) ([]entry, error)
	read         func(ctx context.Context, cat *catalog.Catalog, name string, withChannels bool) (entry, error)
	create       func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) ([]entry, error)
	update       func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) (entry, error)
	remove       func(ctx context.Context, cat *catalog.Catalog, name string) error
	add          func(ctx context.Context, cat *catalog.Catalog, args []string) (entry, error)
	removeSingle func(ctx context.Context, cat *catalog.Catalog, name, channel string) error
}

func tagResource() vocabularyResource {
	toEntry := func(t core.Tag) entry {
		return entry{Name: t.Name, Owner: t.Owner, Channels: t.Channels, value: t}
	}
	decodeOne := func(name string, data []byte) (core.Tag, error) {
		tags, err := encoding.DecodeList[core.Tag](data)
		if err != nil {
			return core.Tag{}, err
		}
		if len(tags) != 1 {
			return core.Tag{}, core.InvalidInputf("expected one tag for %q, got %d", name, len(tags))
		}
		return tags[0], nil
	}

	return vocabularyResource{
		name:    "tag",
		addArgs: "<tag> <channel>",
		list: func(ctx context.Context, cat *catalog.Catalog) ([]entry, error) {
			tags, err := cat.Tags.List(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]entry, len(tags))
			for i, t := range tags {
				out[i] = toEntry(t)
			}
			return out, nil
		},
		read: func(ctx context.Context, cat *catalog.Catalog, name string, withChannels bool) (entry, error) {
			t, err := cat.Tags.Read(ctx, name, withChannels)
			return toEntry(t), err
		},
		create: func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) ([]entry, error) {
			if name != "" {
				tag, err := decodeOne(name, data)
				if err != nil {
					return nil, err
				}
				t, err := cat.Tags.Create(ctx, name, tag)
				if err != nil {
					return nil, err
				}
				return []entry{toEntry(t)}, nil
			}
			tags, err := encoding.DecodeList[core.Tag](data)
			if err != nil {
				return nil, err
			}
			created, err := cat.Tags.CreateAll(ctx, tags)
			if err != nil {
				return nil, err
			}
			out := make([]entry, len(created))
			for i, t := range created {
				out[i] = toEntry(t)
			}
			return out, nil
		},
		update: func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) (entry, error) {
			tag, err := decodeOne(name, data)
			if err != nil {
				return entry{}, err
			}
			t, err := cat.Tags.Update(ctx, name, tag)
			return toEntry(t), err
		},
		remove: func(ctx context.Context, cat *catalog.Catalog, name string) error {
			return cat.Tags.Remove(ctx, name)
		},
		add: func(ctx context.Context, cat *catalog.Catalog, args []string) (entry, error) {
			if len(args) != 2 {
				return entry{}, core.InvalidInputf("usage: tag add <tag> <channel>")
			}
			t, err := cat.Tags.AddSingle(ctx, args[0], args[1])
			return toEntry(t), err
		},
		removeSingle: func(ctx context.Context, cat *catalog.Catalog, name, channel string) error {
			return cat.Tags.RemoveSingle(ctx, name, channel)
		},
	}
}

func propertyResource() vocabularyResource {
	toEntry := func(p core.Property) entry {
		return entry{Name: p.Name, Owner: p.Owner, Channels: p.Channels, value: p}
	}
	decodeOne := func(name string, data []byte) (core.Property, error) {
		props, err := encoding.DecodeList[core.Property](data)
		if err != nil {
			return core.Property{}, err
		}
		if len(props) != 1 {
			return core.Property{}, core.InvalidInputf("expected one property for %q, got %d", name, len(props))
		}
		return props[0], nil
	}

	return vocabularyResource{
		name:    "property",
		addArgs: "<property> <channel> <value>",
		list: func(ctx context.Context, cat *catalog.Catalog) ([]entry, error) {
			props, err := cat.Properties.List(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]entry, len(props))
			for i, p := range props {
				out[i] = toEntry(p)
			}
			return out, nil
		},
		read: func(ctx context.Context, cat *catalog.Catalog, name string, withChannels bool) (entry, error) {
			p, err := cat.Properties.Read(ctx, name, withChannels)
			return toEntry(p), err
		},
		create: func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) ([]entry, error) {
			if name != "" {
				prop, err := decodeOne(name, data)
				if err != nil {
					return nil, err
				}
				p, err := cat.Properties.Create(ctx, name, prop)
				if err != nil {
					return nil, err
				}
				return []entry{toEntry(p)}, nil
			}
			props, err := encoding.DecodeList[core.Property](data)
			if err != nil {
				return nil, err
			}
			created, err := cat.Properties.CreateAll(ctx, props)
			if err != nil {
				return nil, err
			}
			out := make([]entry, len(created))
			for i, p := range created {
				out[i] = toEntry(p)
			}
			return out, nil
		},
		update: func(ctx context.Context, cat *catalog.Catalog, name string, data []byte) (entry, error) {
			prop, err := decodeOne(name, data)
			if err != nil {
				return entry{}, err
			}
			p, err := cat.Properties.Update(ctx, name, prop)
			return toEntry(p), err
		},
		remove: func(ctx context.Context, cat *catalog.Catalog, name string) error {
			return cat.Properties.Remove(ctx, name)
		},
		add: func(ctx context.Context, cat *catalog.Catalog, args []string) (entry, error) {
			if len(args) != 3 {
				return entry{}, core.InvalidInputf("usage: property add <property> <channel> <value>")
			}
			p, err := cat.Properties.AddSingle(ctx, args[0], args[1], args[2])
			return toEntry(p), err
		},
		removeSingle: func(ctx context.Context, cat *catalog.Catalog, name, channel string) error {
			return cat.Properties.RemoveSingle(ctx, name, channel)
		},
	}
}

// newVocabularyCmd builds the list/get/put/post/delete/add/remove commands
// for one vocabulary
func newVocabularyCmd(r vocabularyResource) *cobra.Command {
	root := &cobra.Command{
		Use:   r.name,
		Short: fmt.Sprintf("Manage %s definitions and their channels", r.name),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List every %s", r.name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				entries, err := r.list(ctx, cat)
				if err != nil {
					return err
				}
				return printEntries(cmd, r.name, entries)
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: fmt.Sprintf("Get a %s by name", r.name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withChannels, _ := cmd.Flags().GetBool("with-channels")
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				e, err := r.read(ctx, cat, args[0], withChannels)
				if err != nil {
					return err
				}
				return printEntries(cmd, r.name, []entry{e})
			})
		},
	}
	getCmd.Flags().Bool("with-channels", false, "Include the channels using it")

	putCmd := &cobra.Command{
		Use:   "put [name]",
		Short: fmt.Sprintf("Create or replace %s definitions from a JSON payload", r.name),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readPayload(cmd)
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				entries, err := r.create(ctx, cat, name, data)
				if err != nil {
					return err
				}
				return printEntries(cmd, r.name, entries)
			})
		},
	}

	postCmd := &cobra.Command{
		Use:   "post <name>",
		Short: fmt.Sprintf("Update a %s and add it to the listed channels", r.name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readPayload(cmd)
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				e, err := r.update(ctx, cat, args[0], data)
				if err != nil {
					return err
				}
				return printEntries(cmd, r.name, []entry{e})
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: fmt.Sprintf("Delete a %s definition", r.name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				if err := r.remove(ctx, cat, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s '%s' deleted successfully\n", r.name, args[0])
				return nil
			})
		},
	}

	addCmd := &cobra.Command{
		Use:   "add " + r.addArgs,
		Short: fmt.Sprintf("Add a %s to one channel", r.name),
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				e, err := r.add(ctx, cat, args)
				if err != nil {
					return err
				}
				return printEntries(cmd, r.name, []entry{e})
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   fmt.Sprintf("remove <%s> <channel>", r.name),
		Short: fmt.Sprintf("Remove a %s from one channel", r.name),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, cat *catalog.Catalog) error {
				if err := r.removeSingle(ctx, cat, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s '%s' removed from channel '%s'\n", r.name, args[0], args[1])
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{listCmd, getCmd, putCmd, postCmd, addCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
	for _, c := range []*cobra.Command{putCmd, postCmd} {
		c.Flags().StringP("file", "f", "-", "JSON payload file (- for stdin)")
	}

	root.AddCommand(listCmd, getCmd, putCmd, postCmd, deleteCmd, addCmd, removeCmd)
	return root
}

func printEntries(cmd *cobra.Command, kind string, entries []entry) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		values := make([]any, len(entries))
		for i, e := range entries {
			values[i] = e.value
		}
		return printJSON(cmd.OutOrStdout(), values)
	}
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(w, "No %s definitions found\n", kind)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s (owner: %s)\n", e.Name, e.Owner)
		for _, ch := range e.Channels {
			line := "  " + ch.Name
			if len(ch.Properties) == 1 {
				line += " = " + ch.Properties[0].Value
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

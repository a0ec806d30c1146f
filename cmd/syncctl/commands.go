package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/storage"
	"github.com/bassista/go_syncstore/internal/syncstore"
	"github.com/spf13/cobra"
)

var errKeyNotFound = errors.New("key not found")

func getCmd(opts *rootOptions) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the stored value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := storage.NewFileStorage(opts.file)
			if err != nil {
				return err
			}
			raw, ok, err := fs.Read(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", errKeyNotFound, args[0])
			}
			return printRaw(cmd.OutOrStdout(), raw, pretty)
		},
	}

	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "indent JSON values")
	return cmd
}

func setCmd(opts *rootOptions) *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write a JSON value to a key",
		Example: `  syncctl set count 3
  syncctl set user '{"name":"ada"}'
  syncctl set theme dark --string`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]

			var value any = raw
			if !asString {
				if err := json.Unmarshal([]byte(raw), &value); err != nil {
					return fmt.Errorf("value is not valid JSON (use --string for plain text): %w", err)
				}
			}

			fs, err := storage.NewFileStorage(opts.file)
			if err != nil {
				return err
			}

			var failure *syncstore.Failure
			report := syncstore.ReporterFunc(func(f *syncstore.Failure) {
				if failure == nil {
					failure = f
				}
			})
			s := syncstore.New[any](key, value, true, syncstore.Backend{Storage: fs, Reporter: report})
			s.Set(value)
			if failure != nil {
				return failure
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asString, "string", "s", false, "store VALUE as a JSON string")
	return cmd
}

func rmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"remove"},
		Short:   "Remove keys from the storage",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := storage.NewFileStorage(opts.file)
			if err != nil {
				return err
			}
			for _, key := range args {
				if err := fs.Remove(key); err != nil {
					return fmt.Errorf("remove %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", key)
			}
			return nil
		},
	}
}

func keysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := storage.NewFileStorage(opts.file)
			if err != nil {
				return err
			}
			keys, err := fs.Keys()
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	var initial string

	cmd := &cobra.Command{
		Use:   "watch KEY",
		Short: "Print the value of a key and every change until interrupted",
		Long: `watch opens the key as a synchronized store and prints one JSON line
for the current value and for every change another process writes.
When the key is absent it is written with the --initial value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fallback any
			if err := json.Unmarshal([]byte(initial), &fallback); err != nil {
				return fmt.Errorf("invalid --initial value: %w", err)
			}

			fs, err := storage.NewFileStorage(opts.file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			hub := notify.NewHub()
			if err := fs.StartWatcher(ctx, hub); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			report := syncstore.ReporterFunc(func(f *syncstore.Failure) {
				fmt.Fprintf(errOut, "warning: %v\n", f)
			})
			s := syncstore.New[any](args[0], fallback, true, syncstore.Backend{Storage: fs, Channel: hub, Reporter: report})

			unsubscribe := s.Subscribe(func(v any) {
				line, err := json.Marshal(v)
				if err != nil {
					fmt.Fprintf(errOut, "warning: cannot print value: %v\n", err)
					return
				}
				fmt.Fprintln(out, string(line))
			})
			defer unsubscribe()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&initial, "initial", "null", "JSON value used when the key is absent or unreadable")
	return cmd
}

func printRaw(w io.Writer, raw string, pretty bool) error {
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(raw), "", "  "); err == nil {
			raw = buf.String()
		}
	}
	_, err := fmt.Fprintln(w, raw)
	return err
}

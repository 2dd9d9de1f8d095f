package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lachlan2k/external-dns-hostsblock-webhook/hostsfile"
)

func scopeFlag(cmd *cobra.Command) *bool {
	return cmd.Flags().Bool("all", false, "Include entries outside the managed block")
}

func scopeOf(all bool) hostsfile.Scope {
	if all {
		return hostsfile.AllEntries
	}
	return hostsfile.ManagedOnly
}

// loadedHosts opens and reads the configured hosts file. Commands that only
// read set mustExist so a mistyped path fails instead of listing nothing.
func loadedHosts(cmd *cobra.Command, mustExist bool) (*hostsfile.Hosts, error) {
	_, hosts, err := openHosts(cmd, mustExist)
	if err != nil {
		return nil, err
	}
	if err := hosts.Load(); err != nil {
		return nil, err
	}
	return hosts, nil
}

func printEntries(w io.Writer, hosts *hostsfile.Hosts, scope hostsfile.Scope) {
	for _, e := range hosts.Entries() {
		if e.IsComment() || (scope == hostsfile.ManagedOnly && !e.IsManaged()) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Origin, e.Kind, hostsfile.RenderEntry(e))
	}
}

func newHostsCommands() []*cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the entries of the managed block",
		Args:  cobra.NoArgs,
	}
	listAll := scopeFlag(listCmd)
	listCmd.RunE = func(cmd *cobra.Command, args []string) error {
		hosts, err := loadedHosts(cmd, true)
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), hosts, scopeOf(*listAll))
		return nil
	}

	addCmd := &cobra.Command{
		Use:   "add ADDRESS NAME [NAME...]",
		Short: "Add a record to the managed block, taking its names over from any other entry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := hostsfile.KindOf(args[0]); !ok {
				return fmt.Errorf("%q is not an IPv4 or IPv6 address", args[0])
			}
			hosts, err := loadedHosts(cmd, false)
			if err != nil {
				return err
			}
			if err := hosts.Add(hostsfile.NewRecord(args[0], args[1:]...)); err != nil {
				return err
			}
			return hosts.Write()
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove NAME [NAME...]",
		Short: "Remove names from the managed block",
		Args:  cobra.MinimumNArgs(1),
	}
	removeAll := scopeFlag(removeCmd)
	removeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		hosts, err := loadedHosts(cmd, false)
		if err != nil {
			return err
		}
		for _, name := range args {
			hosts.Remove(name, scopeOf(*removeAll))
		}
		return hosts.Write()
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every entry of the managed block",
		Args:  cobra.NoArgs,
	}
	clearAll := scopeFlag(clearCmd)
	clearCmd.RunE = func(cmd *cobra.Command, args []string) error {
		hosts, err := loadedHosts(cmd, false)
		if err != nil {
			return err
		}
		hosts.Clear(scopeOf(*clearAll))
		return hosts.Write()
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup PATTERN",
		Short: "Print the addresses of names fully matching PATTERN",
		Args:  cobra.ExactArgs(1),
	}
	lookupAll := scopeFlag(lookupCmd)
	lookupCmd.RunE = func(cmd *cobra.Command, args []string) error {
		hosts, err := loadedHosts(cmd, true)
		if err != nil {
			return err
		}
		addrs, err := hosts.AddressesByPattern(args[0], scopeOf(*lookupAll))
		if err != nil {
			return err
		}
		for _, a := range addrs {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	}

	exportCmd := &cobra.Command{
		Use:   "export --output PATH",
		Short: "Render the hosts file to another file, replacing or appending to it",
		Args:  cobra.NoArgs,
	}
	exportOutput := exportCmd.Flags().String("output", "", "File to write the rendering to")
	exportAppend := exportCmd.Flags().Bool("append", false, "Append to the output instead of replacing it")
	_ = exportCmd.MarkFlagRequired("output")
	exportCmd.RunE = func(cmd *cobra.Command, args []string) error {
		hosts, err := loadedHosts(cmd, true)
		if err != nil {
			return err
		}
		var sink hostsfile.Sink = NewOnDiskHostsfilePersister(*exportOutput)
		if *exportAppend {
			sink = NewAppendingHostsfileSink(*exportOutput)
		}
		return hosts.WriteTo(sink)
	}

	return []*cobra.Command{listCmd, addCmd, removeCmd, clearCmd, lookupCmd, exportCmd}
}

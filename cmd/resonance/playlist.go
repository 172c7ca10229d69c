package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "manage playlists",
	Long:  `create, edit and order the playlists under the library's 'playlists' directory.`,
}

var playlistListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "list playlists, or the tracks of one playlist",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			ids, err := lib.ListPlaylistTracks(args[0])
			if err != nil {
				return err
			}
			for i, id := range ids {
				fmt.Printf("%3d  %s\n", i+1, id)
			}
			return nil
		}

		playlists, err := lib.Playlists()
		if err != nil {
			return err
		}
		if len(playlists) == 0 {
			fmt.Println("no playlists")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTRACKS")
		for _, p := range playlists {
			fmt.Fprintf(w, "%s\t%d\n", p.Name, p.Tracks)
		}
		return w.Flush()
	},
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "create an empty playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		if err := lib.CreatePlaylist(args[0]); err != nil {
			return err
		}
		fmt.Printf("created playlist %s\n", args[0])
		return nil
	},
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "delete a playlist; its songs stay in the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		if err := lib.DeletePlaylist(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted playlist %s\n", args[0])
		return nil
	},
}

var playlistRenameCmd = &cobra.Command{
	Use:   "rename <from> <to>",
	Short: "rename a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		if err := lib.RenamePlaylist(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("renamed %s to %s\n", args[0], args[1])
		return nil
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <name> <id>...",
	Short: "add songs to a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		for _, id := range args[1:] {
			if err := lib.AddToPlaylist(args[0], id); err != nil {
				return err
			}
		}
		fmt.Printf("added %d songs to %s\n", len(args)-1, args[0])
		return nil
	},
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "remove <name> <id>...",
	Short: "remove songs from a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		for _, id := range args[1:] {
			if err := lib.RemoveFromPlaylist(args[0], id); err != nil {
				return err
			}
		}
		fmt.Printf("removed %d songs from %s\n", len(args)-1, args[0])
		return nil
	},
}

var playlistOrderCmd = &cobra.Command{
	Use:   "order <name> <id>...",
	Short: "save the order tracks are listed and queued in",
	Long: `saves the given ids as the playlist order. tracks left out keep
appearing after the ordered ones, alphabetically.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		if err := lib.SaveOrder(args[0], args[1:]); err != nil {
			return err
		}
		fmt.Printf("saved order for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playlistCmd)

	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistCreateCmd)
	playlistCmd.AddCommand(playlistDeleteCmd)
	playlistCmd.AddCommand(playlistRenameCmd)
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistRemoveCmd)
	playlistCmd.AddCommand(playlistOrderCmd)
}

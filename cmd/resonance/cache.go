package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/cache"
	"karolbroda.com/resonance/internal/loudness"
	"karolbroda.com/resonance/internal/lyrics"
)

var (
	// flags for cache list and clear
	cacheSortBy  string
	cacheConfirm bool
)

// namespaceCache is the maintenance surface every cache namespace shares.
type namespaceCache interface {
	Path() string
	Stats() (int, int64, error)
	Clear() error
	Prune() (int, error)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "manage the lyrics and loudness caches",
	Long: `manage cached data. 'lyrics' holds lrclib answers for a month,
'loudness' holds song loudness estimates until cleared.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:       "stats [lyrics|loudness]",
	Short:     "show cache statistics",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{cache.NamespaceLyrics, cache.NamespaceLoudness},
	RunE: func(cmd *cobra.Command, args []string) error {
		caches, err := openCaches(args)
		if err != nil {
			return err
		}

		for _, name := range sortedNames(caches) {
			c := caches[name]
			count, sizeBytes, err := c.Stats()
			if err != nil {
				return fmt.Errorf("failed to get %s cache stats: %w", name, err)
			}

			fmt.Printf("%s cache:\n", name)
			fmt.Printf("  location: %s\n", c.Path())
			fmt.Printf("  entries:  %d\n", count)
			fmt.Printf("  size:     %s\n", formatBytes(sizeBytes))
		}
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "list cached lyrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.New[lyrics.Lyrics](cache.NamespaceLyrics, cache.LyricsTTL)
		if err != nil {
			return err
		}

		entries, err := c.ListAll()
		if err != nil {
			return fmt.Errorf("failed to list cache: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("cache is empty")
			return nil
		}

		sortCacheEntries(entries, cacheSortBy)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ARTIST\tTITLE\tSYNCED\tCACHED")
		for _, entry := range entries {
			synced := "-"
			if entry.Value.IsSynced() {
				synced = "yes"
			}
			cacheDate := time.Unix(entry.CreatedAt, 0).Format("2006-01-02")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Value.ArtistName, entry.Value.TrackName, synced, cacheDate)
		}
		w.Flush()

		fmt.Printf("\ntotal: %d songs\n", len(entries))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:       "clear [lyrics|loudness]",
	Short:     "clear cached entries",
	Long:      `remove cached data. use --confirm to skip confirmation prompt.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{cache.NamespaceLyrics, cache.NamespaceLoudness},
	RunE: func(cmd *cobra.Command, args []string) error {
		caches, err := openCaches(args)
		if err != nil {
			return err
		}

		if !cacheConfirm {
			fmt.Printf("are you sure you want to clear the %s cache? (y/n): ", strings.Join(sortedNames(caches), " and "))
			var response string
			fmt.Scanln(&response)
			if strings.ToLower(response) != "y" && strings.ToLower(response) != "yes" {
				fmt.Println("cancelled")
				return nil
			}
		}

		for _, name := range sortedNames(caches) {
			if err := caches[name].Clear(); err != nil {
				return fmt.Errorf("failed to clear %s cache: %w", name, err)
			}
			fmt.Printf("%s cache cleared\n", name)
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "remove expired and unreadable cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		caches, err := openCaches(nil)
		if err != nil {
			return err
		}

		for _, name := range sortedNames(caches) {
			pruned, err := caches[name].Prune()
			if err != nil {
				return fmt.Errorf("failed to prune %s cache: %w", name, err)
			}
			fmt.Printf("removed %d %s entries\n", pruned, name)
		}
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <artist> <title>",
	Short: "remove one song's lyrics from the cache",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.New[lyrics.Lyrics](cache.NamespaceLyrics, cache.LyricsTTL)
		if err != nil {
			return err
		}

		key := lyrics.CacheKey(args[0], args[1])
		if _, err := c.Get(key); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				return fmt.Errorf("song not found in cache")
			}
			return err
		}

		if err := c.Delete(key); err != nil {
			return fmt.Errorf("failed to delete from cache: %w", err)
		}

		fmt.Printf("deleted '%s - %s' from cache\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)

	cacheListCmd.Flags().StringVar(&cacheSortBy, "sort", "date", "sort by: date, artist, title")
	cacheClearCmd.Flags().BoolVar(&cacheConfirm, "confirm", false, "skip confirmation prompt")
}

// helper functions

// openCaches opens the named namespace, or every namespace when args is empty.
func openCaches(args []string) (map[string]namespaceCache, error) {
	open := map[string]func() (namespaceCache, error){
		cache.NamespaceLyrics: func() (namespaceCache, error) {
			return cache.New[lyrics.Lyrics](cache.NamespaceLyrics, cache.LyricsTTL)
		},
		cache.NamespaceLoudness: func() (namespaceCache, error) {
			return cache.New[loudness.Estimate](cache.NamespaceLoudness, 0)
		},
	}

	names := args
	if len(names) == 0 {
		names = []string{cache.NamespaceLyrics, cache.NamespaceLoudness}
	}

	out := make(map[string]namespaceCache, len(names))
	for _, name := range names {
		c, err := open[name]()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s cache: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func sortedNames(caches map[string]namespaceCache) []string {
	names := make([]string, 0, len(caches))
	for name := range caches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sortCacheEntries(entries []*cache.Record[lyrics.Lyrics], sortBy string) {
	switch sortBy {
	case "artist":
		slices.SortFunc(entries, func(a, b *cache.Record[lyrics.Lyrics]) int {
			return strings.Compare(strings.ToLower(a.Value.ArtistName), strings.ToLower(b.Value.ArtistName))
		})
	case "title":
		slices.SortFunc(entries, func(a, b *cache.Record[lyrics.Lyrics]) int {
			return strings.Compare(strings.ToLower(a.Value.TrackName), strings.ToLower(b.Value.TrackName))
		})
	default:
		slices.SortFunc(entries, func(a, b *cache.Record[lyrics.Lyrics]) int {
			return int(b.CreatedAt - a.CreatedAt)
		})
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

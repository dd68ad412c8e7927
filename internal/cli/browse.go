package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/datumcloud/datum-sync/internal/constants"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/listing"
)

func parseSort(s string) (listing.SortType, error) {
	switch listing.SortType(s) {
	case listing.SortNameAsc, listing.SortNameDesc,
		listing.SortUpdateAsc, listing.SortUpdateDesc,
		listing.SortSizeAsc, listing.SortSizeDesc,
		listing.SortTypeAsc, listing.SortTypeDesc:
		return listing.SortType(s), nil
	}
	return "", fmt.Errorf("unknown sort %q (want key.asc or key.desc for name, update, size, type)", s)
}

func parseFilter(s string) (listing.FilterType, error) {
	switch s {
	case "":
		return listing.FilterNone, nil
	case "image":
		return listing.FilterImage, nil
	case "audio":
		return listing.FilterAudio, nil
	case "video":
		return listing.FilterVideo, nil
	}
	return "", fmt.Errorf("unknown filter %q (want image, audio or video)", s)
}

func printSections(c *listing.Container) {
	for _, sec := range c.Sections() {
		marker := "-"
		if sec.IsFolder() {
			marker = "d"
		}
		fmt.Printf("%s %12d  %-24s %s\n", marker, sec.Size, sec.ID, sec.Name)
	}
	fmt.Printf("%d of %d entries\n", len(c.Sections()), c.TotalCount())
}

// loadAll pages through the container until the server says there is
// nothing left.
func loadAll(c *listing.Container, filter listing.FilterType) error {
	var reloadID int64 = 2
	for {
		set, err := c.ReloadNext(GetContext(), filter, reloadID)
		if err != nil {
			return err
		}
		if set == nil {
			return nil
		}
		reloadID++
	}
}

func newLsCmd() *cobra.Command {
	var (
		email      string
		sortFlag   string
		filterFlag string
		folderID   string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "ls [library]",
		Short: "List a library or folder",
		Long: `List the sections of a library. Without an argument the first library
of the account is listed. --folder descends into a folder of that
library by section id.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sortBy, err := parseSort(sortFlag)
			if err != nil {
				return err
			}
			filter, err := parseFilter(filterFlag)
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}
			if err := s.RefreshLibraries(GetContext()); err != nil {
				return err
			}
			libs := s.Libraries()
			if len(libs) == 0 {
				fmt.Println("No libraries.")
				return nil
			}

			lib := libs[0]
			if len(args) == 1 {
				lib = nil
				for _, l := range libs {
					if l.ID() == args[0] || strings.EqualFold(l.Name, args[0]) {
						lib = l
						break
					}
				}
				if lib == nil {
					return fmt.Errorf("no library %q", args[0])
				}
			}

			if _, err := lib.Reload(GetContext(), sortBy, filter, 1); err != nil {
				return err
			}

			target := lib.Container
			if folderID != "" {
				folder := lib.FolderOf(folderID)
				if folder == nil {
					return fmt.Errorf("no folder %q in library %s", folderID, lib.Name)
				}
				if _, err := folder.Reload(GetContext(), sortBy, filter, 1); err != nil {
					return err
				}
				target = folder
			}

			if all {
				if err := loadAll(target, filter); err != nil {
					return err
				}
			}
			printSections(target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")
	cmd.Flags().StringVar(&sortFlag, "sort", string(listing.SortNameAsc), "Sort key (name|update|size|type).(asc|desc)")
	cmd.Flags().StringVar(&filterFlag, "filter", "", "Content filter: image, audio or video")
	cmd.Flags().StringVar(&folderID, "folder", "", "Descend into this folder (section id)")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page, not just the first")

	return cmd
}

// formatEpoch renders a millisecond epoch, or "-" when absent.
func formatEpoch(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func newInfoCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "info <section-id>",
		Short: "Show the property sheet of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}
			info, err := s.SectionProperty(GetContext(), args[0])
			if err != nil {
				return err
			}

			kind := "file"
			if info.Kind == listing.KindFolder {
				kind = "folder"
			}
			fmt.Printf("Name:         %s\n", info.Name)
			fmt.Printf("Kind:         %s\n", kind)
			if info.Path != "" {
				fmt.Printf("Path:         %s\n", info.Path)
			}
			fmt.Printf("Shared:       %v\n", info.Shared)
			fmt.Printf("Created:      %s\n", formatEpoch(info.CreateTime))
			fmt.Printf("Updated:      %s\n", formatEpoch(info.UpdateTime))

			if info.Kind != listing.KindFolder {
				fmt.Printf("Size:         %d\n", info.Size)
				fmt.Printf("Content type: %s\n", info.ContentType)
				base := app.client.BaseURL()
				fmt.Printf("Content URL:  %s%s\n", base, gateway.PathFile(info.ID))
				if strings.HasPrefix(info.ContentType, "image/") {
					fmt.Printf("Preview URL:  %s%s\n", base, gateway.PathImage(info.ID, constants.PreviewImageSize, "jpg"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")

	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		email      string
		sortFlag   string
		filterFlag string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the account's sections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sortBy, err := parseSort(sortFlag)
			if err != nil {
				return err
			}
			filter, err := parseFilter(filterFlag)
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			ss := s.Searches().Session(query)
			if _, err := ss.Reload(GetContext(), sortBy, filter, 1); err != nil {
				return err
			}
			if all {
				if err := loadAll(ss.Container, filter); err != nil {
					return err
				}
			}
			printSections(ss.Container)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")
	cmd.Flags().StringVar(&sortFlag, "sort", string(listing.SortNameAsc), "Sort key (name|update|size|type).(asc|desc)")
	cmd.Flags().StringVar(&filterFlag, "filter", "", "Content filter: image, audio or video")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page, not just the first")

	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/store"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage vault items",
}

// Flags for item add.
var (
	addType     string
	addProject  string
	addTags     []string
	addNotes    string
	addURL      string
	addHost     string
	addPort     string
	addDatabase string
	addUsername string
	addCommand  string
	addKeyFile  string
	addFavorite bool
)

// Flags for item list.
var (
	listType      string
	listProject   string
	listTag       string
	listFavorites bool
)

var itemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an item to the vault",
	Long: `Add an item. Secret values (API key, password, SSH passphrase, note text)
are prompted without echo; everything else comes from flags.

Types: apiKey, database, server, ssh, command, secureNote`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		payload, err := buildPayload(store.ItemType(addType))
		if err != nil {
			return err
		}

		st, err := v.Store()
		if err != nil {
			return err
		}

		item := &store.Item{
			Name:       args[0],
			Type:       store.ItemType(addType),
			IsFavorite: addFavorite,
			Payload:    *payload,
		}

		if addProject != "" {
			projects, err := st.ListProjects()
			if err != nil {
				return err
			}
			for _, p := range projects {
				if strings.EqualFold(p.Name, addProject) {
					item.ProjectID = &p.ID
					break
				}
			}
			if item.ProjectID == nil {
				return fmt.Errorf("project %q not found", addProject)
			}
		}
		for _, name := range addTags {
			tag, err := st.FindTagByName(name)
			if err != nil {
				return fmt.Errorf("tag %q not found", name)
			}
			item.TagIDs = append(item.TagIDs, tag.ID)
		}

		if err := v.CreateItem(item); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", item.Name, item.ID)
		return nil
	},
}

// buildPayload assembles the typed payload, prompting for secret fields.
func buildPayload(typ store.ItemType) (*store.Payload, error) {
	extras := []store.ExtraField{}
	switch typ {
	case store.TypeAPIKey:
		key, err := promptSecret("API key: ")
		if err != nil {
			return nil, err
		}
		return &store.Payload{Type: typ, APIKey: &store.APIKeyData{
			Key: key, URL: addURL, Notes: addNotes, Extras: extras}}, nil

	case store.TypeDatabase:
		password, err := promptSecret("Database password (empty to skip): ")
		if err != nil {
			return nil, err
		}
		return &store.Payload{Type: typ, Database: &store.DatabaseData{
			Host: addHost, Port: addPort, Database: addDatabase,
			Username: addUsername, Password: password, Notes: addNotes, Extras: extras}}, nil

	case store.TypeServer:
		password, err := promptSecret("Server password (empty to skip): ")
		if err != nil {
			return nil, err
		}
		return &store.Payload{Type: typ, Server: &store.ServerData{
			Host: addHost, Port: addPort, Username: addUsername,
			Password: password, Notes: addNotes, Extras: extras}}, nil

	case store.TypeSSH:
		var privateKey string
		if addKeyFile != "" {
			data, err := os.ReadFile(addKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file: %w", err)
			}
			privateKey = string(data)
		}
		passphrase, err := promptSecret("Key passphrase (empty to skip): ")
		if err != nil {
			return nil, err
		}
		return &store.Payload{Type: typ, SSH: &store.SSHData{
			Host: addHost, Port: addPort, Username: addUsername,
			PrivateKey: privateKey, Passphrase: passphrase,
			Notes: addNotes, Extras: extras}}, nil

	case store.TypeCommand:
		return &store.Payload{Type: typ, Command: &store.CommandData{
			Command: addCommand, Notes: addNotes, Extras: extras}}, nil

	case store.TypeSecureNote:
		text, err := promptSecret("Note text: ")
		if err != nil {
			return nil, err
		}
		return &store.Payload{Type: typ, SecureNote: &store.SecureNoteData{
			Text: text, Extras: extras}}, nil

	default:
		return nil, fmt.Errorf("unknown item type %q", typ)
	}
}

func promptSecret(prompt string) (string, error) {
	secret, err := promptPassword(prompt)
	if err != nil {
		return "", err
	}
	defer crypto.SecureWipe(secret)
	return string(secret), nil
}

var itemGetCmd = &cobra.Command{
	Use:   "get <id-or-name>",
	Short: "Show an item, including its secret fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}

		item, err := st.GetItem(args[0])
		if errors.Is(err, store.ErrItemNotFound) {
			// Fall back to a unique name match.
			matches, serr := st.SearchItems(args[0], "")
			if serr != nil {
				return serr
			}
			if len(matches) != 1 {
				return fmt.Errorf("item %q not found (%d name matches)", args[0], len(matches))
			}
			item, err = st.GetItem(matches[0].ID)
		}
		if err != nil {
			return err
		}

		printItem(item)
		return nil
	},
}

func printItem(item *store.Item) {
	fmt.Printf("ID:       %s\n", item.ID)
	fmt.Printf("Name:     %s\n", item.Name)
	fmt.Printf("Type:     %s\n", item.Type)
	fmt.Printf("Created:  %s\n", item.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:  %s\n", item.UpdatedAt.Format("2006-01-02 15:04:05"))

	p := item.Payload
	switch item.Type {
	case store.TypeAPIKey:
		fmt.Printf("Key:      %s\n", p.APIKey.Key)
		if p.APIKey.URL != "" {
			fmt.Printf("URL:      %s\n", p.APIKey.URL)
		}
		printNotesAndExtras(p.APIKey.Notes, p.APIKey.Extras)
	case store.TypeDatabase:
		fmt.Printf("Host:     %s:%s\n", p.Database.Host, p.Database.Port)
		fmt.Printf("Database: %s\n", p.Database.Database)
		fmt.Printf("User:     %s\n", p.Database.Username)
		fmt.Printf("Password: %s\n", p.Database.Password)
		printNotesAndExtras(p.Database.Notes, p.Database.Extras)
	case store.TypeServer:
		fmt.Printf("Host:     %s:%s\n", p.Server.Host, p.Server.Port)
		fmt.Printf("User:     %s\n", p.Server.Username)
		fmt.Printf("Password: %s\n", p.Server.Password)
		printNotesAndExtras(p.Server.Notes, p.Server.Extras)
	case store.TypeSSH:
		fmt.Printf("Host:     %s:%s\n", p.SSH.Host, p.SSH.Port)
		fmt.Printf("User:     %s\n", p.SSH.Username)
		if p.SSH.PrivateKey != "" {
			fmt.Printf("Key:\n%s\n", p.SSH.PrivateKey)
		}
		if p.SSH.Passphrase != "" {
			fmt.Printf("Passphrase: %s\n", p.SSH.Passphrase)
		}
		printNotesAndExtras(p.SSH.Notes, p.SSH.Extras)
	case store.TypeCommand:
		fmt.Printf("Command:  %s\n", p.Command.Command)
		printNotesAndExtras(p.Command.Notes, p.Command.Extras)
	case store.TypeSecureNote:
		fmt.Printf("Text:\n%s\n", p.SecureNote.Text)
		printNotesAndExtras("", p.SecureNote.Extras)
	}
}

func printNotesAndExtras(notes string, extras []store.ExtraField) {
	if notes != "" {
		fmt.Printf("Notes:    %s\n", notes)
	}
	for _, f := range extras {
		fmt.Printf("%-9s %s\n", f.Name+":", f.Value)
	}
}

var itemListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List items (metadata only)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}

		var items []store.ItemSummary
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		if query != "" {
			items, err = st.SearchItems(query, store.ItemType(listType))
		} else {
			filter := store.ItemFilter{
				Type:     store.ItemType(listType),
				TagID:    "",
				Favorite: listFavorites,
			}
			if listProject != "" {
				projects, perr := st.ListProjects()
				if perr != nil {
					return perr
				}
				for _, p := range projects {
					if strings.EqualFold(p.Name, listProject) {
						filter.ProjectID = &p.ID
					}
				}
				if filter.ProjectID == nil {
					return fmt.Errorf("project %q not found", listProject)
				}
			}
			if listTag != "" {
				tag, terr := st.FindTagByName(listTag)
				if terr != nil {
					return terr
				}
				filter.TagID = tag.ID
			}
			items, err = st.ListItems(filter)
		}
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No items.")
			return nil
		}
		for _, it := range items {
			marker := " "
			if it.IsFavorite {
				marker = "*"
			}
			fmt.Printf("%s %-36s  %-10s  %s\n", marker, it.ID, it.Type, it.Name)
		}
		return nil
	},
}

var itemRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		if err := v.DeleteItem(args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var itemFavoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle an item's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		item, err := st.GetItem(args[0])
		if err != nil {
			return err
		}
		if err := st.SetFavorite(item.ID, !item.IsFavorite); err != nil {
			return err
		}
		if item.IsFavorite {
			fmt.Println("Removed from favorites.")
		} else {
			fmt.Println("Added to favorites.")
		}
		return nil
	},
}

func init() {
	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemGetCmd)
	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemRmCmd)
	itemCmd.AddCommand(itemFavoriteCmd)

	itemAddCmd.Flags().StringVar(&addType, "type", "apiKey", "Item type")
	itemAddCmd.Flags().StringVar(&addProject, "project", "", "Project name")
	itemAddCmd.Flags().StringArrayVar(&addTags, "tag", nil, "Tag name (can be repeated)")
	itemAddCmd.Flags().StringVar(&addNotes, "notes", "", "Free-form notes")
	itemAddCmd.Flags().StringVar(&addURL, "url", "", "Service URL (apiKey)")
	itemAddCmd.Flags().StringVar(&addHost, "host", "", "Host (database, server, ssh)")
	itemAddCmd.Flags().StringVar(&addPort, "port", "", "Port (database, server, ssh)")
	itemAddCmd.Flags().StringVar(&addDatabase, "database", "", "Database name (database)")
	itemAddCmd.Flags().StringVar(&addUsername, "username", "", "Username (database, server, ssh)")
	itemAddCmd.Flags().StringVar(&addCommand, "command", "", "Command line (command)")
	itemAddCmd.Flags().StringVar(&addKeyFile, "key-file", "", "Private key file (ssh)")
	itemAddCmd.Flags().BoolVar(&addFavorite, "favorite", false, "Mark as favorite")

	itemListCmd.Flags().StringVar(&listType, "type", "", "Filter by type")
	itemListCmd.Flags().StringVar(&listProject, "project", "", "Filter by project name")
	itemListCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag name")
	itemListCmd.Flags().BoolVar(&listFavorites, "favorites", false, "Only favorites")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/infrastructure/storage"
	"messenger/repositories"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	_ = godotenv.Load()
	defaultPath := os.Getenv("BADGER_FILEPATH")
	if defaultPath == "" {
		defaultPath = database.DefaultPath
	}
	dbPath := flag.String("db", defaultPath, "Path to badger DB")
	collection := flag.String("collection", domain.ChatsCollection, "chats, groups or users")
	flag.Parse()

	// BypassLockGuard allows reading while the client holds the lock
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromLevel(slog.LevelWarn)
	store := storage.NewBadgerStore(db, logger)
	ctx := context.Background()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	switch *collection {
	case domain.ChatsCollection, domain.GroupsCollection:
		docs, err := store.Query(ctx, document.NewQuery(*collection))
		if err != nil {
			log.Fatal("Error while reading conversations: ", err)
		}
		table.SetHeader([]string{"Id", "Participants", "Last message", "Last time", "Unread"})
		for _, doc := range docs {
			c := repositories.ConversationFromDocument(doc)
			lastTime := ""
			if c.LastMessageTime != nil {
				lastTime = c.LastMessageTime.Local().Format("2006-01-02 15:04:05")
			}
			table.Append([]string{string(c.Ref.ID), strings.Join(c.Participants, ","), c.LastMessage, lastTime, formatCounts(c.Unread)})
		}
	case domain.UsersCollection:
		users, err := repositories.NewUserRepository(store, logger).List(ctx)
		if err != nil {
			log.Fatal("Error while reading users: ", err)
		}
		table.SetHeader([]string{"Id", "Username", "Email", "Notifications", "Devices", "Muted chats"})
		for _, u := range users {
			table.Append([]string{u.ID, u.Username, u.Email,
				fmt.Sprint(u.NotificationsEnabled && u.Settings.Enabled),
				fmt.Sprint(len(u.DeviceTokens)),
				fmt.Sprint(len(u.Settings.ChatMuted))})
		}
	default:
		log.Fatalf("Unknown collection %q", *collection)
	}
	table.Render()
}

// formatCounts prints "u1=0 u2=3" in a stable order.
func formatCounts(counts domain.UnreadCounts) string {
	ids := lo.Keys(counts)
	sort.Strings(ids)
	return strings.Join(lo.Map(ids, func(id string, _ int) string {
		return fmt.Sprintf("%s=%d", id, counts[id])
	}), " ")
}
